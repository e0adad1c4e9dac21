// Package source turns an image URI into a readable byte stream.
//
// A Dispatcher picks exactly one strategy per call from the URI scheme:
// http and https go to the network Opener, file goes to the file Opener,
// everything else goes to the other Resolver. New kinds of sources are
// added by supplying a Resolver (see Mux), never by changing the dispatch.
//
// Every type in this package is safe for concurrent use. Streams returned
// by Open belong to the caller, who must Close them.
package source

import (
	"context"
	"io"
	"net/url"
	"strings"
)

// Opener retrieves the bytes addressed by u. Used for the network and
// file strategies, which always produce a stream or fail.
type Opener interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// Resolver handles every scheme that is neither network nor file.
// ok is false with a nil error when the resolver has nothing for u.
type Resolver interface {
	Resolve(ctx context.Context, u *url.URL) (rc io.ReadCloser, ok bool, err error)
}

// Source is what callers of this package hold.
//
// Open returns (rc, true, nil) on success, (nil, false, nil) when no
// stream is available for u, and (nil, false, err) on failure.
type Source interface {
	Open(ctx context.Context, u *url.URL) (rc io.ReadCloser, ok bool, err error)
}

// Strategy identifies which variant handles a scheme.
type Strategy int

const (
	StrategyOther Strategy = iota
	StrategyNetwork
	StrategyFile
)

func (s Strategy) String() string {
	switch s {
	case StrategyNetwork:
		return "network"
	case StrategyFile:
		return "file"
	default:
		return "other"
	}
}

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
	schemeFile  = "file"
)

// Classify maps a scheme to its strategy. Comparison ignores ASCII case
// but nothing else; unknown and empty schemes are StrategyOther.
func Classify(scheme string) Strategy {
	switch {
	case strings.EqualFold(scheme, schemeHTTP), strings.EqualFold(scheme, schemeHTTPS):
		return StrategyNetwork
	case strings.EqualFold(scheme, schemeFile):
		return StrategyFile
	default:
		return StrategyOther
	}
}

// Dispatcher is the default Source. Its strategies are fixed at
// construction.
type Dispatcher struct {
	network Opener
	file    Opener
	other   Resolver
}

// New creates a Dispatcher. A nil network Opener means NewHTTPOpener(nil),
// a nil file Opener means NewFileOpener(DefaultBufferSize) and a nil
// Resolver means NoResolver.
func New(network Opener, file Opener, other Resolver) *Dispatcher {
	if network == nil {
		network = NewHTTPOpener(nil)
	}
	if file == nil {
		file = NewFileOpener(DefaultBufferSize)
	}
	if other == nil {
		other = NoResolver{}
	}
	return &Dispatcher{
		network: network,
		file:    file,
		other:   other,
	}
}

// Open hands u to the one strategy its scheme selects and returns that
// strategy's result untouched.
func (d *Dispatcher) Open(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	if u == nil {
		return nil, false, &Error{Kind: KindMalformed, Err: ErrMalformedIdentifier}
	}
	switch Classify(u.Scheme) {
	case StrategyNetwork:
		return opened(d.network.Open(ctx, u))
	case StrategyFile:
		return opened(d.file.Open(ctx, u))
	default:
		return d.other.Resolve(ctx, u)
	}
}

func opened(rc io.ReadCloser, err error) (io.ReadCloser, bool, error) {
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}
