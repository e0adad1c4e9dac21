package store

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Hash is the content address of a full-size image.
type Hash struct {
	Algorithm string
	Value     []byte
}

func HashFromString(str, algorithm string) (*Hash, error) {
	if algorithm == "" {
		algorithm = "sha1"
	}
	str = strings.ToLower(str)
	if len(str) != 40 {
		return nil, errors.New("invalid hash")
	}
	for _, c := range str {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return nil, fmt.Errorf("invalid hash character %q", c)
		}
	}
	return &Hash{algorithm, []byte(str)}, nil
}

// HashOf reads r to the end and returns its sha1 address.
func HashOf(r io.Reader) (*Hash, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return HashFromString(fmt.Sprintf("%x", h.Sum(nil)), "sha1")
}

// HashStringFromPath converts some/base/12/34/45/.../full.jpg to 123445...
// It expects a filename at the end; there can be arbitrarily many extra
// path components on the front.
func HashStringFromPath(path string) (string, error) {
	dir := filepath.Dir(path)
	parts := strings.Split(filepath.ToSlash(dir), "/")
	// only want the last 20 parts
	if len(parts) < 20 {
		return "", errors.New("not enough parts")
	}
	hash := strings.Join(parts[len(parts)-20:], "")
	if len(hash) != 40 {
		return "", fmt.Errorf("invalid hash length: %d (%s)", len(hash), hash)
	}
	return hash, nil
}

// AsPath splits the hash into two-character directories.
func (h Hash) AsPath() string {
	var parts []string
	s := h.String()
	for i := range s {
		if (i % 2) != 0 {
			parts = append(parts, s[i-1:i+1])
		}
	}
	return strings.Join(parts, "/")
}

func (h Hash) String() string {
	return string(h.Value)
}

func (h Hash) Valid() bool {
	return h.Algorithm == "sha1" && len(h.String()) == 40
}
