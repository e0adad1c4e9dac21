package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/go-kit/log"

	"github.com/thraxil/imgsource/source"
)

var (
	errNoStream   = errors.New("no stream for identifier")
	errMissingURI = errors.New("missing uri parameter")
	errTooLarge   = errors.New("resource too large")
	sniffLen      = 512
)

// FetchView encapsulates the business logic for fetching a stream.
type FetchView struct {
	src    source.Source
	policy *accessPolicy
	logger log.Logger
}

// NewFetchView creates a new FetchView.
func NewFetchView(src source.Source, policy *accessPolicy, logger log.Logger) *FetchView {
	return &FetchView{src: src, policy: policy, logger: logger}
}

// parseURI is the boundary where raw strings become identifiers. Nothing
// the policy refuses gets past it.
func parseURI(raw string, policy *accessPolicy) (*url.URL, error) {
	if raw == "" {
		return nil, errMissingURI
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &source.Error{Kind: source.KindMalformed, URI: raw,
			Err: errors.Join(source.ErrMalformedIdentifier, err)}
	}
	if err := policy.Check(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Open returns the stream for raw along with a sniffed content type.
// The caller must close the stream.
func (v *FetchView) Open(ctx context.Context, raw string) (io.ReadCloser, string, error) {
	u, err := parseURI(raw, v.policy)
	if err != nil {
		return nil, "", err
	}
	rc, ok, err := v.src.Open(ctx, u)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", errNoStream, u.Redacted())
	}
	br := bufio.NewReaderSize(rc, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		_ = rc.Close()
		_ = v.logger.Log("level", "ERR", "msg", "could not read stream head",
			"uri", u.Redacted(), "error", err.Error())
		return nil, "", err
	}
	return &peekedStream{Reader: br, Closer: rc}, http.DetectContentType(head), nil
}

type peekedStream struct {
	io.Reader
	io.Closer
}

// statusFor maps a view error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errNoStream):
		return http.StatusNotFound
	case errors.Is(err, errMissingURI):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	switch source.KindOf(err) {
	case source.KindMalformed:
		return http.StatusBadRequest
	case source.KindFilesystem:
		if errors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case source.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
