package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DataResolver decodes RFC 2397 data URIs in memory:
//
//	data:[<mediatype>][;base64],<data>
type DataResolver struct{}

func (DataResolver) Resolve(_ context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	b, err := decodeData(u)
	if err != nil {
		return nil, false, &Error{Kind: KindMalformed, URI: u.String(), Err: err}
	}
	return io.NopCloser(bytes.NewReader(b)), true, nil
}

func decodeData(u *url.URL) ([]byte, error) {
	payload := u.Opaque
	if u.RawQuery != "" || u.ForceQuery {
		payload += "?" + u.RawQuery
	}
	meta, data, found := strings.Cut(payload, ",")
	if !found {
		return nil, fmt.Errorf("%w: data URI without ','", ErrMalformedIdentifier)
	}
	raw, err := url.PathUnescape(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return []byte(raw), nil
	}
	raw = strings.TrimRight(raw, "=")
	b, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	return b, nil
}
