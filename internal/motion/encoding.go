package motion

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrInvalidText is returned when bytes are not valid in the requested encoding.
var ErrInvalidText = errors.New("invalid text for encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextEncoding is a named character encoding used to read recordings.
type TextEncoding struct {
	Name   string
	enc    encoding.Encoding
	strict bool
}

// LookupEncoding resolves an IANA encoding name such as "utf-8" or
// "iso-8859-1".
func LookupEncoding(name string) (TextEncoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return TextEncoding{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return TextEncoding{}, fmt.Errorf("unsupported encoding %q", name)
	}
	strict := enc == unicode.UTF8
	if canonical, err := ianaindex.IANA.Name(enc); err == nil && canonical == "UTF-8" {
		strict = true
	}
	return TextEncoding{Name: strings.ToLower(name), enc: enc, strict: strict}, nil
}

// MustLookupEncoding is LookupEncoding for compile-time constant names.
func MustLookupEncoding(name string) TextEncoding {
	e, err := LookupEncoding(name)
	if err != nil {
		panic(err)
	}
	return e
}

// Decode converts raw bytes to UTF-8. UTF-8 input is validated strictly and
// a leading byte order mark is dropped; other encodings go through their
// x/text decoder.
func (e TextEncoding) Decode(data []byte) ([]byte, error) {
	if e.enc == nil {
		return nil, fmt.Errorf("zero TextEncoding: %w", ErrInvalidText)
	}
	if e.strict {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s: %w", e.Name, ErrInvalidText)
		}
		return data, nil
	}
	out, err := e.enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", e.Name, ErrInvalidText, err)
	}
	return out, nil
}
