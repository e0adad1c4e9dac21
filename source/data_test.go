package source

import (
	"context"
	"errors"
	"testing"
)

func Test_DataResolver(t *testing.T) {
	var cases = []struct {
		uri  string
		want string
	}{
		{"data:,hello", "hello"},
		{"data:text/plain,hello%20world", "hello world"},
		{"data:text/plain;base64,aGVsbG8=", "hello"},
		{"data:;base64,aGVsbG8", "hello"},
		{"data:image/gif;BASE64,R0lGODlh", "GIF89a"},
		{"data:,what?yes", "what?yes"},
		{"data:text/plain;base64,YT8/Pw==", "a???"},
	}
	for _, tc := range cases {
		rc, ok, err := DataResolver{}.Resolve(context.Background(), mustParse(t, tc.uri))
		if err != nil || !ok {
			t.Errorf("%s: ok=%v err=%v", tc.uri, ok, err)
			continue
		}
		if got := readAll(t, rc); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.uri, got, tc.want)
		}
	}
}

func Test_DataResolverMalformed(t *testing.T) {
	for _, s := range []string{
		"data:nocomma",
		"data:;base64,!!!notbase64",
	} {
		_, ok, err := DataResolver{}.Resolve(context.Background(), mustParse(t, s))
		if ok || !errors.Is(err, ErrMalformedIdentifier) || KindOf(err) != KindMalformed {
			t.Errorf("%s: expected malformed failure, got ok=%v err=%v", s, ok, err)
		}
	}
}
