package source

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
)

// NoResolver has nothing for any URI. It is the Dispatcher's default.
type NoResolver struct{}

func (NoResolver) Resolve(context.Context, *url.URL) (io.ReadCloser, bool, error) {
	return nil, false, nil
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error)

func (f ResolverFunc) Resolve(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	return f(ctx, u)
}

// Mux routes custom schemes to their Resolvers. Schemes without an entry
// resolve to nothing. A Mux is read-only once built.
type Mux struct {
	resolvers map[string]Resolver
}

// NewMux copies m, lowercasing the scheme keys. Nil entries are skipped.
func NewMux(m map[string]Resolver) *Mux {
	resolvers := make(map[string]Resolver, len(m))
	for scheme, r := range m {
		if r == nil {
			continue
		}
		resolvers[strings.ToLower(scheme)] = r
	}
	return &Mux{resolvers: resolvers}
}

func (m *Mux) Resolve(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	r, ok := m.resolvers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, false, nil
	}
	return r.Resolve(ctx, u)
}

// Schemes lists the schemes the Mux has entries for, sorted.
func (m *Mux) Schemes() []string {
	schemes := make([]string, 0, len(m.resolvers))
	for s := range m.resolvers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}
