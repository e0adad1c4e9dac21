package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 20 * time.Second
	defaultUserAgent      = "imgsource/1.0"
	maxRedirects          = 10
)

// HTTPOptions configures NewHTTPOpener. The zero value is usable.
type HTTPOptions struct {
	// Client replaces the built-in client; the timeouts are then ignored.
	Client         *http.Client
	Timeout        time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	// CheckRedirect, when set, is asked about every redirect after the
	// usual limit of 10 hops.
	CheckRedirect func(req *http.Request, via []*http.Request) error
	// DialControl, when set, can refuse a connection once the address
	// has been resolved. See net.Dialer.Control.
	DialControl func(network, address string, c syscall.RawConn) error
}

// HTTPOpener fetches http and https URIs with a GET request.
// Immutable after construction; the *http.Client is safe to share.
type HTTPOpener struct {
	client    *http.Client
	userAgent string
}

func NewHTTPOpener(opts *HTTPOptions) *HTTPOpener {
	if opts == nil {
		opts = &HTTPOptions{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		connect := opts.ConnectTimeout
		if connect <= 0 {
			connect = defaultConnectTimeout
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultReadTimeout
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = (&net.Dialer{Timeout: connect, Control: opts.DialControl}).DialContext
		client = &http.Client{Transport: tr, Timeout: timeout}
		if opts.CheckRedirect != nil {
			check := opts.CheckRedirect
			client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return check(req, via)
			}
		}
	}
	return &HTTPOpener{client: client, userAgent: ua}
}

func (h *HTTPOpener) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	uri := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, URI: uri, Err: err}
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, zstd")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, URI: uri, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &Error{Kind: KindTransport, URI: uri,
			Err: &StatusError{Code: resp.StatusCode, Status: resp.Status}}
	}
	body, err := decodeBody(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, &Error{Kind: KindTransport, URI: uri, Err: err}
	}
	return body, nil
}

// decodeBody undoes the content codings we asked for. Unknown codings are
// passed through as-is.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		rc := zr.IOReadCloser()
		return &decodedBody{Reader: rc, closers: []io.Closer{rc, resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
