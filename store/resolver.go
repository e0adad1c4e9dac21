// Package store serves a reticulum-style content-addressed image
// directory through the reticulum:// scheme.
//
// Images live at <root>/<hash as 20 two-character dirs>/<size><ext>, with
// the original upload at full<ext>.
package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"path/filepath"

	"github.com/thraxil/imgsource/source"
)

// Resolver is a source.Resolver for reticulum URIs. It maps the URI to a
// path under Root and lets the file strategy open it.
type Resolver struct {
	root  string
	files source.Opener
}

// NewResolver serves root through files. A nil files means
// source.NewFileOpener(source.DefaultBufferSize).
func NewResolver(root string, files source.Opener) *Resolver {
	if files == nil {
		files = source.NewFileOpener(source.DefaultBufferSize)
	}
	return &Resolver{root: root, files: files}
}

// Root is the store directory.
func (r *Resolver) Root() string { return r.root }

// Resolve reports no stream when the requested size has not been
// stored; scaling is left to the caller. The normalized extension is
// tried first, then the extension as written in u.
func (r *Resolver) Resolve(ctx context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	spec, err := ParseSpecifier(u)
	if err != nil {
		return nil, false, &source.Error{
			Kind: source.KindMalformed,
			URI:  u.String(),
			Err:  errors.Join(source.ErrMalformedIdentifier, err),
		}
	}
	candidates := []Specifier{*spec}
	if literal := spec.AsWritten(); literal.Extension != spec.Extension {
		candidates = append(candidates, literal)
	}
	for _, c := range candidates {
		rc, err := r.files.Open(ctx, r.fileURL(c))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return rc, true, nil
	}
	return nil, false, nil
}

func (r *Resolver) fileURL(spec Specifier) *url.URL {
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(spec.SizedPath(r.root))}
}
