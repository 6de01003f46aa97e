// Package codec is the entry point of json-guard: a JSON encoder and decoder
// that fail with a classified error instead of overflowing the stack.
//
// Two backends implement the same contract. Pure uses the hand-written
// parser in jsontoken and the writer in jsonenc. Accelerated hands the bulk
// of the work to github.com/goccy/go-json, with the same recursion guards in
// front of it. Callers pick one explicitly; both honor identical depth,
// cycle and fallback semantics.
package codec

import (
	"fmt"
	"strings"

	"github.com/lattice-substrate/json-guard/binfmt"
	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/jsonenc"
	"github.com/lattice-substrate/json-guard/jsontoken"
	"github.com/lattice-substrate/json-guard/textenc"
)

// Backend selects the implementation behind a Codec.
type Backend int

const (
	// Pure is the hand-written parser and writer.
	Pure Backend = iota
	// Accelerated delegates to go-json behind the recursion guards.
	Accelerated
)

func (b Backend) String() string {
	switch b {
	case Pure:
		return "pure"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend maps "pure" or "accelerated" to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pure":
		return Pure, nil
	case "accelerated", "accel":
		return Accelerated, nil
	default:
		return Pure, fmt.Errorf("unknown backend %q", name)
	}
}

// Backends lists every backend.
func Backends() []Backend {
	return []Backend{Pure, Accelerated}
}

// Codec holds decode limits and the backend choice. The zero value is a
// pure codec with default limits. A Codec is not modified by its methods
// and may be shared between goroutines.
type Codec struct {
	Backend Backend

	// MaxDepth bounds nesting for decoding, and for encoding when the
	// encode options leave MaxDepth unset. 0 means DefaultMaxDepth.
	MaxDepth int

	// MaxInputSize bounds decode input in bytes; 0 means the jsontoken
	// default.
	MaxInputSize int

	// UseNumber decodes numbers as json.Number instead of float64.
	UseNumber bool
}

// DefaultMaxDepth is the nesting limit shared by encoding and decoding.
const DefaultMaxDepth = jsontoken.DefaultMaxDepth

var std = &Codec{}

// Encode encodes v with the pure backend and default options.
func Encode(v any) ([]byte, error) {
	return std.Encode(v, nil)
}

// Decode decodes data with the pure backend and default limits.
func Decode(data []byte) (any, error) {
	return std.Decode(data)
}

func (c *Codec) tokenOptions() *jsontoken.Options {
	return &jsontoken.Options{
		MaxDepth:     c.MaxDepth,
		MaxInputSize: c.MaxInputSize,
		UseNumber:    c.UseNumber,
	}
}

// encodeOptions returns a private copy of opts with the codec's depth limit
// filled in.
func (c *Codec) encodeOptions(opts *jsonenc.Options) *jsonenc.Options {
	var o jsonenc.Options
	if opts == nil {
		o = *jsonenc.DefaultOptions()
	} else {
		o = *opts
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = c.MaxDepth
	}
	return &o
}

// Encode returns the JSON encoding of v. A nil opts means
// jsonenc.DefaultOptions(). On failure the output is nil and the error is a
// *guarderr.Error; see jsonenc.Resolve for the classes.
func (c *Codec) Encode(v any, opts *jsonenc.Options) ([]byte, error) {
	resolved, err := jsonenc.Resolve(v, c.encodeOptions(opts))
	if err != nil {
		return nil, err
	}
	if c.Backend == Accelerated {
		return marshalAccelerated(resolved)
	}
	return jsonenc.Write(resolved)
}

// EncodeAs encodes v in the given format. Binary formats go through the
// same guarded walk as JSON.
func (c *Codec) EncodeAs(f binfmt.Format, v any, opts *jsonenc.Options) ([]byte, error) {
	if f == binfmt.JSON {
		return c.Encode(v, opts)
	}
	resolved, err := jsonenc.Resolve(v, c.encodeOptions(opts))
	if err != nil {
		return nil, err
	}
	return binfmt.Marshal(f, resolved)
}

// Decode parses a complete UTF-8 JSON text.
func (c *Codec) Decode(data []byte) (any, error) {
	if c.Backend == Accelerated {
		return decodeAccelerated(data, c.tokenOptions())
	}
	return jsontoken.ParseWithOptions(data, c.tokenOptions())
}

// DecodeString parses a JSON text held in a string.
func (c *Codec) DecodeString(s string) (any, error) {
	return c.Decode([]byte(s))
}

// DecodeText parses JSON text in the given encoding. textenc.Auto detects
// UTF-8, UTF-16 and UTF-32 with or without a byte order mark.
func (c *Codec) DecodeText(data []byte, enc textenc.Encoding) (any, error) {
	if err := jsontoken.CheckInputSize(len(data), c.tokenOptions()); err != nil {
		return nil, err
	}
	text, err := textenc.ToUTF8(data, enc)
	if err != nil {
		return nil, err
	}
	return c.Decode(text)
}

// DecodeAs parses data in the given format. MessagePack input is not
// supported.
func (c *Codec) DecodeAs(f binfmt.Format, data []byte) (any, error) {
	switch f {
	case binfmt.JSON:
		return c.Decode(data)
	case binfmt.CBOR:
		if err := jsontoken.CheckInputSize(len(data), c.tokenOptions()); err != nil {
			return nil, err
		}
		return binfmt.UnmarshalCBOR(data, c.MaxDepth)
	default:
		return nil, guarderr.Newf(guarderr.UnsupportedType, -1, "decoding %s is not supported", f)
	}
}
