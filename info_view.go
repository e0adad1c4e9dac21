package main

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/h2non/bimg"
	"github.com/valyala/bytebufferpool"

	"github.com/thraxil/imgsource/source"
)

type imageInfoResponse struct {
	URI      string `json:"uri"`
	Strategy string `json:"strategy"`
	Length   int    `json:"length"`
	Etag     string `json:"etag"`
	Type     string `json:"type"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// InfoView encapsulates the business logic for describing the image
// behind an identifier.
type InfoView struct {
	src      source.Source
	policy   *accessPolicy
	maxBytes int64
	logger   log.Logger
}

// NewInfoView creates a new InfoView.
func NewInfoView(src source.Source, policy *accessPolicy, maxBytes int64, logger log.Logger) *InfoView {
	return &InfoView{src: src, policy: policy, maxBytes: maxBytes, logger: logger}
}

// Describe reads the whole stream for raw (up to the configured limit)
// and returns the JSON marshalled imageInfoResponse.
func (v *InfoView) Describe(ctx context.Context, raw string) ([]byte, error) {
	u, err := parseURI(raw, v.policy)
	if err != nil {
		return nil, err
	}
	rc, ok, err := v.src.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoStream, u.Redacted())
	}
	defer rc.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(io.LimitReader(rc, v.maxBytes+1)); err != nil {
		return nil, fmt.Errorf("reading %s: %w", u.Redacted(), err)
	}
	if int64(buf.Len()) > v.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, v.maxBytes)
	}

	info := imageInfoResponse{
		URI:      u.Redacted(),
		Strategy: source.Classify(u.Scheme).String(),
		Length:   buf.Len(),
		Etag:     fmt.Sprintf("%x", sha1.Sum(buf.B)),
		Type:     bimg.DetermineImageTypeName(buf.B),
	}
	if info.Type != "unknown" {
		meta, err := bimg.Metadata(buf.B)
		if err != nil {
			_ = v.logger.Log("level", "WARN", "msg", "could not read image metadata",
				"uri", info.URI, "error", err.Error())
		} else {
			info.Width = meta.Size.Width
			info.Height = meta.Size.Height
		}
	}

	b, err := json.Marshal(info)
	if err != nil {
		_ = v.logger.Log("level", "ERR", "msg", "error marshalling image info", "error", err.Error())
		return nil, fmt.Errorf("failed to marshal image info: %w", err)
	}
	return b, nil
}
