package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// DefaultBufferSize is the read-ahead used for local files.
const DefaultBufferSize = 8 * 1024

// FileOpener opens file URIs from the local filesystem.
type FileOpener struct {
	bufSize int
}

// NewFileOpener returns a FileOpener whose streams read ahead size bytes.
// size <= 0 means DefaultBufferSize.
func NewFileOpener(size int) *FileOpener {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &FileOpener{bufSize: size}
}

// Open ignores ctx; opening a local file has no cancellation point.
func (f *FileOpener) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	path, err := filePath(u)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, URI: u.String(), Err: err}
	}
	return f.openPath(u.String(), path)
}

func (f *FileOpener) openPath(uri, path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindFilesystem, URI: uri, Err: err}
	}
	return f.wrap(uri, fh)
}

// wrap takes ownership of fh and refuses anything that is not a regular
// file (or a symlink to one).
func (f *FileOpener) wrap(uri string, fh *os.File) (io.ReadCloser, error) {
	fi, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, &Error{Kind: KindFilesystem, URI: uri, Err: err}
	}
	if !fi.Mode().IsRegular() {
		_ = fh.Close()
		return nil, &Error{Kind: KindFilesystem, URI: uri,
			Err: fmt.Errorf("%s is not a regular file", fh.Name())}
	}
	return newBufferedCloser(fh, f.bufSize), nil
}

func filePath(u *url.URL) (string, error) {
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", ErrMalformedIdentifier, u.Host)
	}
	p := u.Path
	if p == "" && u.Opaque != "" {
		var err error
		p, err = url.PathUnescape(u.Opaque)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
		}
	}
	if p == "" {
		return "", fmt.Errorf("%w: empty file path", ErrMalformedIdentifier)
	}
	return filepath.FromSlash(p), nil
}

// bufferedCloser pairs a bufio.Reader with the Closer underneath it.
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(rc io.ReadCloser, size int) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(rc, size), c: rc}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
