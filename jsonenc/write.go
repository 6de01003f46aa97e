package jsonenc

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/lattice-substrate/json-guard/guarderr"
)

// Marshal resolves v and writes it as compact JSON. Object keys are sorted
// bytewise. A failed Marshal returns no output at all.
func Marshal(v any, opts *Options) ([]byte, error) {
	resolved, err := Resolve(v, opts)
	if err != nil {
		return nil, err
	}
	return Write(resolved)
}

// Write serializes a resolved tree produced by Resolve. It does not guard
// against cycles or depth itself.
func Write(resolved any) ([]byte, error) {
	buf, err := appendValue(nil, resolved)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if v {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		return appendString(buf, v), nil
	case json.Number:
		return append(buf, v...), nil
	case int64:
		return strconv.AppendInt(buf, v, 10), nil
	case uint64:
		return strconv.AppendUint(buf, v, 10), nil
	case float64:
		return appendFloat(buf, v, 64), nil
	case float32:
		return appendFloat(buf, float64(v), 32), nil
	case []any:
		return appendArray(buf, v)
	case map[string]any:
		return appendObject(buf, v)
	default:
		return nil, guarderr.Newf(guarderr.InternalError, -1, "unresolved value of type %T", v)
	}
}

// appendFloat formats f like ECMAScript Number::toString for finite values:
// shortest round-trip digits, exponent form below 1e-6 and from 1e21 up.
func appendFloat(buf []byte, f float64, bits int) []byte {
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	buf = strconv.AppendFloat(buf, f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(buf)
		if n >= 4 && buf[n-4] == 'e' && buf[n-3] == '-' && buf[n-2] == '0' {
			buf[n-2] = buf[n-1]
			buf = buf[:n-1]
		}
	}
	return buf
}

// appendString escapes a string for JSON output:
//   - " → \"
//   - \ → \\
//   - U+0008 → \b, U+0009 → \t, U+000A → \n, U+000C → \f, U+000D → \r
//   - Other control chars U+0000-U+001F → \u00xx (lowercase hex)
//   - U+2028, U+2029 → \u2028, \u2029
//   - Invalid UTF-8 → \ufffd
//   - Everything else: raw UTF-8
func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			switch {
			case b == '"':
				buf = append(buf, '\\', '"')
			case b == '\\':
				buf = append(buf, '\\', '\\')
			case b == '\b':
				buf = append(buf, '\\', 'b')
			case b == '\t':
				buf = append(buf, '\\', 't')
			case b == '\n':
				buf = append(buf, '\\', 'n')
			case b == '\f':
				buf = append(buf, '\\', 'f')
			case b == '\r':
				buf = append(buf, '\\', 'r')
			case b < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigit(b>>4), hexDigit(b&0x0F))
			default:
				buf = append(buf, b)
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			buf = append(buf, `\ufffd`...)
		case r == '\u2028' || r == '\u2029':
			buf = append(buf, '\\', 'u', '2', '0', '2', hexDigit(byte(r&0x0F)))
		default:
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	buf = append(buf, '"')
	return buf
}

func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'a' + (b - 10)
}

func appendArray(buf []byte, elems []any) ([]byte, error) {
	buf = append(buf, '[')
	for i := range elems {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendValue(buf, elems[i])
		if err != nil {
			return nil, err
		}
	}
	buf = append(buf, ']')
	return buf, nil
}

func appendObject(buf []byte, members map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, k)
		buf = append(buf, ':')
		var err error
		buf, err = appendValue(buf, members[k])
		if err != nil {
			return nil, err
		}
	}
	buf = append(buf, '}')
	return buf, nil
}
