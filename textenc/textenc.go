// Package textenc detects and transcodes the encodings JSON text may arrive
// in. RFC 8259 requires UTF-8 on the wire, but JSON produced by wide-character
// runtimes is commonly stored as UTF-16 or UTF-32; decoders accept those by
// transcoding to UTF-8 first.
package textenc

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/lattice-substrate/json-guard/guarderr"
)

// Encoding names a text encoding.
type Encoding int

const (
	Auto Encoding = iota
	UTF8
	UTF16LE
	UTF16BE
	UTF32LE
	UTF32BE
)

var names = map[Encoding]string{
	Auto:    "auto",
	UTF8:    "utf-8",
	UTF16LE: "utf-16le",
	UTF16BE: "utf-16be",
	UTF32LE: "utf-32le",
	UTF32BE: "utf-32be",
}

func (e Encoding) String() string {
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// ParseEncoding maps a name such as "utf-16le" (case-insensitive, dash
// optional) to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	if norm == "" {
		return Auto, nil
	}
	for enc, n := range names {
		if norm == n || norm == strings.ReplaceAll(n, "-", "") {
			return enc, nil
		}
	}
	return Auto, fmt.Errorf("unknown text encoding %q", name)
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// Detect guesses the encoding of JSON text from a byte order mark, or, when
// there is none, from the pattern of zero bytes in the first four octets
// (RFC 4627 §3): JSON text starts with two ASCII characters, so the
// positions of their zero high bytes identify the encoding.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF32LE):
		return UTF32LE
	case bytes.HasPrefix(data, bomUTF32BE):
		return UTF32BE
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8
	}

	if len(data) >= 4 {
		if data[0] == 0 {
			if data[1] != 0 {
				return UTF16BE
			}
			return UTF32BE
		}
		if data[1] == 0 {
			if data[2] != 0 || data[3] != 0 {
				return UTF16LE
			}
			return UTF32LE
		}
	} else if len(data) == 2 {
		if data[0] == 0 {
			return UTF16BE
		}
		if data[1] == 0 {
			return UTF16LE
		}
	}
	return UTF8
}

func (e Encoding) codec() (encoding.Encoding, []byte) {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), bomUTF16LE
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), bomUTF16BE
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), bomUTF32LE
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), bomUTF32BE
	default:
		return unicode.UTF8, bomUTF8
	}
}

// ToUTF8 transcodes data from enc to UTF-8, dropping a leading byte order
// mark. Auto runs Detect first. UTF-8 input is returned without copying.
func ToUTF8(data []byte, enc Encoding) ([]byte, error) {
	if enc == Auto {
		enc = Detect(data)
	}
	c, bom := enc.codec()
	data = bytes.TrimPrefix(data, bom)
	if enc == UTF8 {
		return data, nil
	}

	out, err := c.NewDecoder().Bytes(data)
	if err != nil {
		return nil, guarderr.Wrap(guarderr.InvalidEncoding, -1, "cannot decode "+enc.String()+" text", err)
	}
	return out, nil
}

// FromUTF8 transcodes UTF-8 data to enc without a byte order mark.
func FromUTF8(data []byte, enc Encoding) ([]byte, error) {
	if enc == Auto || enc == UTF8 {
		return data, nil
	}
	c, _ := enc.codec()
	out, err := c.NewEncoder().Bytes(data)
	if err != nil {
		return nil, guarderr.Wrap(guarderr.InvalidEncoding, -1, "cannot encode "+enc.String()+" text", err)
	}
	return out, nil
}
