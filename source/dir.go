package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
)

// DirResolver serves resource identifiers such as res://icons/star.png
// out of a single directory. Host and path are joined into a name
// relative to the root; names that would leave the root fail.
type DirResolver struct {
	root  string
	files *FileOpener
}

// NewDirResolver serves files below root with the read-ahead of files.
// A nil files means NewFileOpener(DefaultBufferSize).
func NewDirResolver(root string, files *FileOpener) *DirResolver {
	if files == nil {
		files = NewFileOpener(DefaultBufferSize)
	}
	return &DirResolver{root: root, files: files}
}

func (d *DirResolver) Resolve(_ context.Context, u *url.URL) (io.ReadCloser, bool, error) {
	uri := u.String()
	name, err := resourceName(u)
	if err != nil {
		return nil, false, &Error{Kind: KindMalformed, URI: uri, Err: err}
	}
	fh, err := os.OpenInRoot(d.root, name)
	if err != nil {
		return nil, false, &Error{Kind: KindFilesystem, URI: uri, Err: err}
	}
	rc, err := d.files.wrap(uri, fh)
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}

func resourceName(u *url.URL) (string, error) {
	p := u.Path
	if p == "" && u.Opaque != "" {
		var err error
		if p, err = url.PathUnescape(u.Opaque); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
		}
	}
	name := strings.TrimPrefix(path.Join(u.Host, p), "/")
	if name == "" || name == "." {
		return "", fmt.Errorf("%w: empty resource name", ErrMalformedIdentifier)
	}
	return name, nil
}
