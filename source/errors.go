package source

import (
	"errors"
	"fmt"
)

// ErrMalformedIdentifier is wrapped by errors for identifiers the caller
// should never have passed in.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Kind classifies a failure.
type Kind int

const (
	// KindTransport: a network retrieval could not be set up or completed.
	KindTransport Kind = iota + 1
	// KindFilesystem: a local path is missing, unreadable or not a file.
	KindFilesystem
	// KindMalformed: the identifier itself is unusable.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFilesystem:
		return "filesystem"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned by the strategies in this package. The underlying
// error stays reachable through errors.Is and errors.As.
type Error struct {
	Kind Kind
	URI  string
	Err  error
}

func (e *Error) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failure for %s: %v", e.Kind, e.URI, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "bad status: " + e.Status
}
