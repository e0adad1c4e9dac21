package source

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// recordingOpener counts calls and returns a stream naming itself.
type recordingOpener struct {
	name  string
	calls atomic.Int64
	err   error
}

func (r *recordingOpener) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return io.NopCloser(strings.NewReader(r.name)), nil
}

func (r *recordingOpener) Resolve(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	rc, err := r.Open(ctx, u)
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}

func newRecorders() (*recordingOpener, *recordingOpener, *recordingOpener, *Dispatcher) {
	n := &recordingOpener{name: "network"}
	f := &recordingOpener{name: "file"}
	o := &recordingOpener{name: "other"}
	return n, f, o, New(n, f, o)
}

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("could not parse %q: %v", s, err)
	}
	return u
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(b)
}

func Test_Classify(t *testing.T) {
	var cases = []struct {
		scheme string
		want   Strategy
	}{
		{"http", StrategyNetwork},
		{"https", StrategyNetwork},
		{"HTTP", StrategyNetwork},
		{"HttpS", StrategyNetwork},
		{"file", StrategyFile},
		{"FILE", StrategyFile},
		{"content", StrategyOther},
		{"data", StrategyOther},
		{"ftp", StrategyOther},
		{"", StrategyOther},
		{"http ", StrategyOther},
		{"files", StrategyOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.scheme); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.scheme, got, tc.want)
		}
	}
}

func Test_DispatchRoutesToExactlyOneStrategy(t *testing.T) {
	var cases = []struct {
		uri  string
		want string
	}{
		{"http://example.com/a.jpg", "network"},
		{"https://example.com/a.jpg", "network"},
		{"file:///tmp/a.jpg", "file"},
		{"content://media/external/images/42", "other"},
		{"data:,hello", "other"},
		{"drawable://12", "other"},
		{"relative/path.jpg", "other"},
	}
	for _, tc := range cases {
		n, f, o, d := newRecorders()
		rc, ok, err := d.Open(context.Background(), mustParse(t, tc.uri))
		if err != nil || !ok {
			t.Fatalf("%s: unexpected result ok=%v err=%v", tc.uri, ok, err)
		}
		if got := readAll(t, rc); got != tc.want {
			t.Errorf("%s: routed to %s, want %s", tc.uri, got, tc.want)
		}
		total := n.calls.Load() + f.calls.Load() + o.calls.Load()
		if total != 1 {
			t.Errorf("%s: %d strategies called, want exactly 1", tc.uri, total)
		}
	}
}

func Test_DispatchUpperCaseScheme(t *testing.T) {
	n, f, _, d := newRecorders()
	u := &url.URL{Scheme: "HTTPS", Host: "example.com", Path: "/a.jpg"}
	rc, _, _ := d.Open(context.Background(), u)
	rc.Close()
	u = &url.URL{Scheme: "File", Path: "/tmp/a.jpg"}
	rc, _, _ = d.Open(context.Background(), u)
	rc.Close()
	if n.calls.Load() != 1 || f.calls.Load() != 1 {
		t.Errorf("network=%d file=%d, want 1 and 1", n.calls.Load(), f.calls.Load())
	}
}

func Test_DispatchSurfacesFailureUnchanged(t *testing.T) {
	boom := errors.New("boom")
	n := &recordingOpener{err: boom}
	d := New(n, nil, nil)
	rc, ok, err := d.Open(context.Background(), mustParse(t, "http://example.com/x"))
	if err != boom {
		t.Errorf("expected the strategy's own error, got %v", err)
	}
	if ok || rc != nil {
		t.Error("failure should carry no stream")
	}
}

func Test_DefaultResolverIsAbsent(t *testing.T) {
	d := New(nil, nil, nil)
	for _, s := range []string{
		"content://media/external/images/42",
		"data:,hello",
		"assets://x.png",
		"",
	} {
		rc, ok, err := d.Open(context.Background(), mustParse(t, s))
		if err != nil {
			t.Errorf("%q: absent result should not be an error: %v", s, err)
		}
		if ok || rc != nil {
			t.Errorf("%q: expected no stream", s)
		}
	}
}

func Test_DispatchNilIdentifier(t *testing.T) {
	_, f, _, d := newRecorders()
	_, ok, err := d.Open(context.Background(), nil)
	if ok || !errors.Is(err, ErrMalformedIdentifier) {
		t.Errorf("expected malformed identifier error, got %v", err)
	}
	if KindOf(err) != KindMalformed {
		t.Errorf("wrong kind: %s", KindOf(err))
	}
	if f.calls.Load() != 0 {
		t.Error("no strategy should run for a nil identifier")
	}
}

func Test_Mux(t *testing.T) {
	content := &recordingOpener{name: "content"}
	m := NewMux(map[string]Resolver{
		"CONTENT": content,
		"data":    DataResolver{},
		"skip":    nil,
	})
	if got := strings.Join(m.Schemes(), ","); got != "content,data" {
		t.Errorf("wrong schemes: %s", got)
	}
	d := New(nil, nil, m)

	rc, ok, err := d.Open(context.Background(), mustParse(t, "content://media/external/images/42"))
	if err != nil || !ok {
		t.Fatalf("content: ok=%v err=%v", ok, err)
	}
	if readAll(t, rc) != "content" {
		t.Error("content scheme went to the wrong resolver")
	}

	rc, ok, err = d.Open(context.Background(), mustParse(t, "data:,hi"))
	if err != nil || !ok || readAll(t, rc) != "hi" {
		t.Errorf("data: ok=%v err=%v", ok, err)
	}

	_, ok, err = d.Open(context.Background(), mustParse(t, "android.resource://pkg/1"))
	if ok || err != nil {
		t.Errorf("unregistered scheme should be absent, got ok=%v err=%v", ok, err)
	}
}

func Test_ResolverFunc(t *testing.T) {
	var seen string
	r := ResolverFunc(func(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
		seen = u.Opaque
		return nil, false, nil
	})
	d := New(nil, nil, r)
	if _, ok, err := d.Open(context.Background(), mustParse(t, "custom:thing")); ok || err != nil {
		t.Error("ResolverFunc result not passed through")
	}
	if seen != "thing" {
		t.Errorf("resolver saw %q", seen)
	}
}
