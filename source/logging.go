package source

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
)

type loggingSource struct {
	next   Source
	logger log.Logger
}

// WithLogging logs every Open of next, and the byte count of each
// returned stream when it is closed. Results pass through unchanged.
func WithLogging(next Source, logger log.Logger) Source {
	return &loggingSource{next: next, logger: logger}
}

func (l *loggingSource) Open(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	t0 := time.Now()
	rc, ok, err := l.next.Open(ctx, u)
	if u == nil {
		_ = l.logger.Log("level", "ERR", "msg", "open called without an identifier", "error", err)
		return rc, ok, err
	}
	strategy := Classify(u.Scheme).String()
	switch {
	case err != nil:
		_ = l.logger.Log("level", "ERR", "msg", "could not open stream",
			"uri", u.Redacted(), "strategy", strategy, "kind", KindOf(err), "error", err.Error())
	case !ok:
		_ = l.logger.Log("level", "WARN", "msg", "no stream for identifier",
			"uri", u.Redacted(), "strategy", strategy)
	default:
		_ = l.logger.Log("level", "INFO", "msg", "opened stream",
			"uri", u.Redacted(), "strategy", strategy, "time", time.Since(t0))
		rc = &countingCloser{ReadCloser: rc, logger: l.logger, uri: u.Redacted(), start: t0}
	}
	return rc, ok, err
}

// countingCloser belongs to a single caller, like the stream it wraps.
type countingCloser struct {
	io.ReadCloser
	logger log.Logger
	uri    string
	start  time.Time
	n      uint64
	once   sync.Once
}

func (c *countingCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += uint64(n)
	return n, err
}

func (c *countingCloser) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(func() {
		_ = c.logger.Log("level", "INFO", "msg", "closed stream",
			"uri", c.uri, "read", humanize.Bytes(c.n), "time", time.Since(c.start))
	})
	return err
}
