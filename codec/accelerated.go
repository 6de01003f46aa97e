package codec

import (
	"bytes"

	gojson "github.com/goccy/go-json"

	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/jsontoken"
)

// go-json rejects documents nested deeper than this on its own.
const goJSONMaxDepth = 10000

// decodeAccelerated validates the input with jsontoken.ScanDepth, which
// applies the pure decoder's full grammar, before go-json sees it. Any
// rejection therefore has the pure decoder's class and offset. A go-json
// failure on scanned input is re-parsed by the pure decoder.
func decodeAccelerated(data []byte, opts *jsontoken.Options) (any, error) {
	depth, err := jsontoken.ScanDepth(data, opts)
	if err != nil {
		return nil, err
	}
	if depth > goJSONMaxDepth {
		return jsontoken.ParseWithOptions(data, opts)
	}

	dec := gojson.NewDecoder(bytes.NewReader(data))
	if opts.UseNumber {
		dec.UseNumber()
	}
	var v any
	if err := dec.Decode(&v); err != nil {
		if _, perr := jsontoken.ParseWithOptions(data, opts); perr != nil {
			return nil, perr
		}
		return nil, guarderr.Wrap(guarderr.InvalidGrammar, -1, "invalid JSON", err)
	}
	return v, nil
}

// marshalAccelerated emits a resolved tree. The tree is acyclic and within
// the depth limit, so go-json needs no guards of its own.
func marshalAccelerated(resolved any) ([]byte, error) {
	out, err := gojson.MarshalWithOption(resolved, gojson.DisableHTMLEscape())
	if err != nil {
		return nil, guarderr.Wrap(guarderr.InternalError, -1, "go-json encoding failed", err)
	}
	return out, nil
}
