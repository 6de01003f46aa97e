// Package binfmt emits resolved value trees in binary formats.
//
// The input of Marshal must come from jsonenc.Resolve: cycles, depth and
// fallback conversion are settled there, so the CBOR and MessagePack
// encoders only ever see acyclic, depth-bounded trees of plain values.
//
// CBOR can also be read back. The CBOR decoder enforces the same nesting
// limit as the JSON decoder; MessagePack is emit-only.
package binfmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/jsontoken"
)

// Format identifies an output format.
type Format int

const (
	JSON Format = iota
	CBOR
	MessagePack
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	case MessagePack:
		return "msgpack"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat maps "json", "cbor" or "msgpack" to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	case "msgpack", "messagepack":
		return MessagePack, nil
	default:
		return JSON, fmt.Errorf("unknown format %q", name)
	}
}

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 section 4.2): sorted map keys, smallest integer and float encodings,
// no indefinite-length items.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("binfmt: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBOR bounds the nesting setting to [4, 65535].
const (
	minCBORNesting = 4
	maxCBORNesting = 65535
)

// Marshal encodes a resolved tree. JSON is not handled here; use
// jsonenc.Write or a codec backend.
func Marshal(f Format, resolved any) ([]byte, error) {
	native, err := nativeNumbers(resolved)
	if err != nil {
		return nil, err
	}

	switch f {
	case CBOR:
		out, err := encMode.Marshal(native)
		if err != nil {
			return nil, guarderr.Wrap(guarderr.InternalError, -1, "cbor encoding failed", err)
		}
		return out, nil
	case MessagePack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		enc.UseCompactInts(true)
		if err := enc.Encode(native); err != nil {
			return nil, guarderr.Wrap(guarderr.InternalError, -1, "msgpack encoding failed", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, guarderr.Newf(guarderr.InternalError, -1, "binfmt cannot emit %s", f)
	}
}

// UnmarshalCBOR decodes CBOR into map[string]any, []any and scalar values,
// failing with RECURSION_LIMIT_EXCEEDED when arrays and maps nest deeper
// than maxDepth (0 means jsontoken.DefaultMaxDepth). CBOR caps nesting at
// 65535 regardless of maxDepth.
func UnmarshalCBOR(data []byte, maxDepth int) (any, error) {
	if maxDepth <= 0 {
		maxDepth = jsontoken.DefaultMaxDepth
	}
	nesting := maxDepth
	if nesting < minCBORNesting {
		nesting = minCBORNesting
	}
	if nesting > maxCBORNesting {
		nesting = maxCBORNesting
	}
	dm, err := cbor.DecOptions{
		MaxNestedLevels: nesting,
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, guarderr.Wrap(guarderr.InternalError, -1, "cbor decoder initialization failed", err)
	}

	var v any
	if err := dm.Unmarshal(data, &v); err != nil {
		var nestErr *cbor.MaxNestedLevelError
		if errors.As(err, &nestErr) {
			return nil, guarderr.Wrap(guarderr.RecursionLimitExceeded, -1, "cbor nesting exceeds limit", err)
		}
		return nil, guarderr.Wrap(guarderr.InvalidGrammar, -1, "invalid cbor", err)
	}
	if maxDepth < minCBORNesting {
		if _, err := checkDepth(v, maxDepth); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// checkDepth re-checks nesting for limits below the CBOR minimum. v is
// already bounded by the CBOR decoder, so the recursion is bounded too.
func checkDepth(v any, maxDepth int) (int, error) {
	var deepest int
	switch v := v.(type) {
	case []any:
		for _, e := range v {
			d, err := checkDepth(e, maxDepth)
			if err != nil {
				return 0, err
			}
			deepest = max(deepest, d)
		}
	case map[string]any:
		for _, e := range v {
			d, err := checkDepth(e, maxDepth)
			if err != nil {
				return 0, err
			}
			deepest = max(deepest, d)
		}
	default:
		return 0, nil
	}
	deepest++
	if deepest > maxDepth {
		return 0, guarderr.Newf(guarderr.RecursionLimitExceeded, -1,
			"nesting depth %d exceeds maximum %d", deepest, maxDepth)
	}
	return deepest, nil
}

// nativeNumbers replaces json.Number values with int64, uint64 or float64
// so binary encoders emit numbers rather than text.
func nativeNumbers(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		return numberValue(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			n, err := nativeNumbers(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			n, err := nativeNumbers(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

func numberValue(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return u, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return nil, guarderr.Newf(guarderr.UnsupportedValue, -1, "number %s does not fit a float64", string(n))
	}
	return f, nil
}
