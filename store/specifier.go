package store

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/thraxil/resize"
)

// Scheme is the URI scheme served by Resolver.
const Scheme = "reticulum"

// Specifier is the combination of fields that uniquely specify a stored
// image.
type Specifier struct {
	Hash      *Hash
	Size      *resize.SizeSpec
	Extension string // with leading '.'

	// extension as it appeared in the URI, before normalizing
	written string
}

func (s Specifier) String() string {
	return s.Hash.String() + "/" + s.Size.String() + "/image" + s.Extension
}

// URL is the reticulum URI for s.
func (s Specifier) URL() *url.URL {
	return &url.URL{
		Scheme: Scheme,
		Host:   s.Hash.String(),
		Path:   "/" + s.Size.String() + "/image" + s.Extension,
	}
}

// ParseSpecifier reads reticulum://<hash>/<size>/<name>.<ext>. The size
// goes through resize.MakeSizeSpec, so "100s200w" names the 100s file,
// and .jpeg is stored as .jpg. The name itself is ignored.
func ParseSpecifier(u *url.URL) (*Specifier, error) {
	rest := u.Host + u.Path
	if u.Host == "" && u.Opaque != "" {
		rest = u.Opaque
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected <hash>/<size>/<filename>, got %q", rest)
	}
	ahash, err := HashFromString(parts[0], "")
	if err != nil {
		return nil, fmt.Errorf("bad hash: %w", err)
	}
	if parts[1] == "" {
		return nil, errors.New("missing size")
	}
	size := resize.MakeSizeSpec(parts[1])
	if !size.IsFull() && size.Width() < 1 && size.Height() < 1 {
		return nil, fmt.Errorf("bad size %q", parts[1])
	}
	written := path.Ext(parts[2])
	if written == "" || written == "." {
		return nil, fmt.Errorf("missing extension in %q", parts[2])
	}
	extension := strings.ToLower(written)
	if extension == ".jpeg" {
		extension = ".jpg"
	}
	return &Specifier{Hash: ahash, Size: size, Extension: extension, written: written}, nil
}

// AsWritten is s with the extension spelled as it was in the URI it was
// parsed from. Files stored before extensions were normalized live there.
func (s Specifier) AsWritten() Specifier {
	if s.written != "" {
		s.Extension = s.written
	}
	return s
}

func (s Specifier) baseDir(root string) string {
	return filepath.Join(root, filepath.FromSlash(s.Hash.AsPath()))
}

// FullSizePath is where the original upload lives.
func (s Specifier) FullSizePath(root string) string {
	return filepath.Join(s.baseDir(root), "full"+s.Extension)
}

// SizedPath is where the scaled copy for s.Size lives.
func (s Specifier) SizedPath(root string) string {
	return filepath.Join(s.baseDir(root), s.Size.String()+s.Extension)
}

// FullVersion is s at full size.
func (s Specifier) FullVersion() Specifier {
	s.Size = resize.MakeSizeSpec("full")
	return s
}
