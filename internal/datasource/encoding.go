package datasource

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Decode wraps rc so reads yield UTF-8. name is a WHATWG encoding label such
// as "windows-1252" or "latin1"; empty and UTF-8 labels return rc unchanged.
func Decode(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return rc, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("source encoding %q: %w", name, err)
	}
	return decodedReader{
		Reader: transform.NewReader(rc, enc.NewDecoder()),
		Closer: rc,
	}, nil
}

type decodedReader struct {
	io.Reader
	io.Closer
}
