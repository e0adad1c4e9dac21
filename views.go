package main

import (
	"html/template"
	"io"
	"net/http"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type sitecontext struct {
	Cfg       *siteConfig
	SL        log.Logger
	FetchView *FetchView
	InfoView  *InfoView
}

func makeHandler(fn func(http.ResponseWriter, *http.Request, sitecontext), ctx sitecontext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, ctx)
	}
}

// routes wires every view into a mux.
func routes(ctx sitecontext, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /fetch/", makeHandler(fetchHandler, ctx))
	mux.HandleFunc("GET /info/", makeHandler(infoHandler, ctx))
	mux.HandleFunc("GET /status/", makeHandler(statusHandler, ctx))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /favicon.ico", faviconHandler)
	return mux
}

func fetchHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	rc, contentType, err := ctx.FetchView.Open(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		// headers are gone already; all we can do is log it
		_ = ctx.SL.Log("level", "ERR", "msg", "error streaming response", "error", err.Error())
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	b, err := ctx.InfoView.Describe(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

type statusPage struct {
	Title  string
	Config siteConfig
}

func statusHandler(w http.ResponseWriter, r *http.Request, ctx sitecontext) {
	p := statusPage{
		Title:  "Status",
		Config: *ctx.Cfg,
	}
	t, _ := template.New("status").Parse(statusTemplate)
	_ = t.Execute(w, p)
}

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	// just give it nothing to make it go away
	_, _ = w.Write(nil)
}

const statusTemplate = `
<html><head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>Port</th><td>{{.Config.Port}}</td></tr>
<tr><th>Buffer size</th><td>{{.Config.BufferSize}}</td></tr>
<tr><th>HTTP timeout</th><td>{{.Config.HTTPTimeout}}</td></tr>
<tr><th>Connect timeout</th><td>{{.Config.ConnectTimeout}}</td></tr>
<tr><th>data: URIs</th><td>{{.Config.EnableData}}</td></tr>
{{if .Config.StoreDirectory}}<tr><th>Store</th><td>{{.Config.StoreDirectory}}</td></tr>{{end}}
{{range $scheme, $dir := .Config.ResourceDirectories}}<tr><th>{{$scheme}}:</th><td>{{$dir}}</td></tr>
{{end}}
{{range .Config.FileRoots}}<tr><th>file: root</th><td>{{.}}</td></tr>
{{end}}
{{range .Config.AllowedHosts}}<tr><th>allowed host</th><td>{{.}}</td></tr>
{{end}}
<tr><th>private networks</th><td>{{.Config.AllowPrivateNetworks}}</td></tr>
{{if .Config.RedisAddr}}<tr><th>Redis</th><td>{{.Config.RedisAddr}}</td></tr>{{end}}
</table>
<p><a href="/metrics">metrics</a></p>
</body>
</html>
`
