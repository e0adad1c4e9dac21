// Package kv resolves redis:// identifiers to blobs stored in Redis.
package kv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/thraxil/imgsource/source"
)

// Scheme is the URI scheme served by Resolver.
const Scheme = "redis"

// Getter is the part of a redis client the resolver needs.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Resolver reads redis://<any host>/<key>. The host is informational;
// every lookup goes to the configured client. Keys are path-unescaped.
type Resolver struct {
	client Getter
}

func NewResolver(client Getter) *Resolver {
	return &Resolver{client: client}
}

// NewClient connects to a single redis server.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *Resolver) Resolve(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" && u.Opaque != "" {
		opaque, err := url.PathUnescape(u.Opaque)
		if err != nil {
			return nil, false, &source.Error{Kind: source.KindMalformed, URI: u.String(),
				Err: errors.Join(source.ErrMalformedIdentifier, err)}
		}
		key = opaque
	}
	if key == "" {
		return nil, false, &source.Error{Kind: source.KindMalformed, URI: u.String(),
			Err: errors.Join(source.ErrMalformedIdentifier, errors.New("empty key"))}
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &source.Error{Kind: source.KindTransport, URI: u.Redacted(), Err: err}
	}
	return io.NopCloser(bytes.NewReader(b)), true, nil
}
