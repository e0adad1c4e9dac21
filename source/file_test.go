package source

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"
)

func fileURL(path string) *url.URL {
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func Test_FileJPEGScenario(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}
	p := writeFile(t, t.TempDir(), "a.jpg", jpeg)

	u, err := url.Parse("file://" + filepath.ToSlash(p))
	if err != nil {
		t.Fatal(err)
	}
	rc, ok, err := New(nil, nil, nil).Open(context.Background(), u)
	if err != nil || !ok {
		t.Fatalf("open failed: ok=%v err=%v", ok, err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, jpeg) {
		t.Errorf("got % x, want % x", got, jpeg)
	}
}

func Test_FileBytesIndependentOfBufferSize(t *testing.T) {
	dir := t.TempDir()
	sizes := []int{0, 1, 100, DefaultBufferSize - 1, DefaultBufferSize, DefaultBufferSize + 1, 5*DefaultBufferSize + 17}
	for _, size := range sizes {
		content := make([]byte, size)
		if _, err := rand.Read(content); err != nil {
			t.Fatal(err)
		}
		p := writeFile(t, dir, fmt.Sprintf("f%d.bin", size), content)
		for _, buf := range []int{0, 16, 4096, 64 * 1024} {
			rc, err := NewFileOpener(buf).Open(context.Background(), fileURL(p))
			if err != nil {
				t.Fatalf("size %d buf %d: %v", size, buf, err)
			}
			// small reads, like a decoder pulling a few bytes at a time
			var got bytes.Buffer
			chunk := make([]byte, 7)
			for {
				n, err := rc.Read(chunk)
				got.Write(chunk[:n])
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatal(err)
				}
			}
			rc.Close()
			if !bytes.Equal(got.Bytes(), content) {
				t.Errorf("size %d buf %d: content mismatch", size, buf)
			}
		}
	}
}

func Test_FileMissing(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nope.jpg")
	rc, ok, err := New(nil, nil, nil).Open(context.Background(), fileURL(p))
	if err == nil {
		t.Fatal("missing file should fail")
	}
	if ok || rc != nil {
		t.Error("missing file must not produce a stream")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist in chain, got %v", err)
	}
	if KindOf(err) != KindFilesystem {
		t.Errorf("expected filesystem failure, got %s", KindOf(err))
	}
}

func Test_FileDirectory(t *testing.T) {
	_, err := NewFileOpener(0).Open(context.Background(), fileURL(t.TempDir()))
	if KindOf(err) != KindFilesystem {
		t.Errorf("opening a directory should be a filesystem failure, got %v", err)
	}
}

func Test_FileHosts(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.txt", []byte("hello"))

	u := &url.URL{Scheme: "file", Host: "localhost", Path: filepath.ToSlash(p)}
	rc, err := NewFileOpener(0).Open(context.Background(), u)
	if err != nil {
		t.Fatalf("localhost should be accepted: %v", err)
	}
	if readAll(t, rc) != "hello" {
		t.Error("wrong content")
	}

	u = &url.URL{Scheme: "file", Host: "fileserver", Path: filepath.ToSlash(p)}
	_, err = NewFileOpener(0).Open(context.Background(), u)
	if !errors.Is(err, ErrMalformedIdentifier) {
		t.Errorf("remote host should be malformed, got %v", err)
	}

	_, err = NewFileOpener(0).Open(context.Background(), &url.URL{Scheme: "file"})
	if KindOf(err) != KindMalformed {
		t.Errorf("empty path should be malformed, got %v", err)
	}
}

func Test_FileOpaque(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "with space.txt", []byte("opaque"))
	t.Chdir(dir)

	u := mustParse(t, "file:with%20space.txt")
	rc, err := NewFileOpener(0).Open(context.Background(), u)
	if err != nil {
		t.Fatalf("opaque file URI: %v", err)
	}
	if readAll(t, rc) != "opaque" {
		t.Error("wrong content")
	}
}

func Test_ConcurrentFileOpens(t *testing.T) {
	dir := t.TempDir()
	const count = 100
	want := make([][]byte, count)
	urls := make([]*url.URL, count)
	for i := range count {
		content := make([]byte, 3*DefaultBufferSize+i*13)
		if _, err := rand.Read(content); err != nil {
			t.Fatal(err)
		}
		want[i] = content
		urls[i] = fileURL(writeFile(t, dir, fmt.Sprintf("img%03d.jpg", i), content))
	}

	d := New(nil, nil, nil)
	got := make([][]byte, count)
	var g errgroup.Group
	// each file is requested by several callers at once
	for round := 0; round < 4; round++ {
		for i := range count {
			g.Go(func() error {
				rc, ok, err := d.Open(context.Background(), urls[i])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no stream for %s", urls[i])
				}
				defer rc.Close()
				b, err := io.ReadAll(rc)
				if err != nil {
					return err
				}
				if !bytes.Equal(b, want[i]) {
					return fmt.Errorf("content mismatch for %s", urls[i])
				}
				if round == 0 {
					got[i] = b
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i := range count {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("file %d: content mismatch", i)
		}
	}
}
