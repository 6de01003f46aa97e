// Package jsontoken provides the pure JSON decoder used by json-guard.
//
// The parser is a recursive-descent parser whose nesting depth is an explicit
// counter on the parser state, checked each time an array or object is
// opened and before anything is allocated for it. Deeply nested input is
// therefore rejected with a RECURSION_LIMIT_EXCEEDED failure long before the
// Go stack or the heap become a concern.
//
// Decoded values use the same shapes as encoding/json decoding into an
// interface value: map[string]any, []any, string, float64 (or json.Number),
// bool and nil.
package jsontoken

import (
	"encoding/json"
	"math"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lattice-substrate/json-guard/guarderr"
)

// Limits for denial-of-service protection.
const (
	// DefaultMaxDepth is the maximum nesting depth for objects and arrays.
	DefaultMaxDepth = 1000

	// DefaultMaxInputSize is the maximum input size in bytes (64 MiB).
	DefaultMaxInputSize = 64 * 1024 * 1024
)

// Options controls parser behavior.
type Options struct {
	MaxDepth     int  // 0 means DefaultMaxDepth
	MaxInputSize int  // 0 means DefaultMaxInputSize
	UseNumber    bool // decode numbers as json.Number instead of float64
}

// MaxDepthOrDefault returns the effective depth limit.
func (o *Options) MaxDepthOrDefault() int {
	if o != nil && o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

// MaxInputSizeOrDefault returns the effective input size limit.
func (o *Options) MaxInputSizeOrDefault() int {
	if o != nil && o.MaxInputSize > 0 {
		return o.MaxInputSize
	}
	return DefaultMaxInputSize
}

func (o *Options) useNumber() bool {
	return o != nil && o.UseNumber
}

type parser struct {
	data      []byte
	pos       int
	depth     int
	maxDepth  int
	useNumber bool
}

// Parse parses a complete JSON text with default options.
func Parse(data []byte) (any, error) {
	return ParseWithOptions(data, nil)
}

// ParseWithOptions parses a complete JSON text. Every failure is a
// *guarderr.Error:
//   - RECURSION_LIMIT_EXCEEDED when arrays/objects nest deeper than MaxDepth
//   - BOUND_EXCEEDED when the input is larger than MaxInputSize
//   - INVALID_UTF8 for malformed UTF-8 inside strings
//   - UNSUPPORTED_VALUE for numbers that overflow float64
//   - INVALID_GRAMMAR for everything else
func ParseWithOptions(data []byte, opts *Options) (any, error) {
	if err := CheckInputSize(len(data), opts); err != nil {
		return nil, err
	}

	p := &parser{
		data:      data,
		maxDepth:  opts.MaxDepthOrDefault(),
		useNumber: opts.useNumber(),
	}

	p.skipWhitespace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.pos != len(p.data) {
		return nil, p.grammarf("trailing content after JSON value")
	}
	return v, nil
}

// CheckInputSize reports BOUND_EXCEEDED when n is over the input size limit.
func CheckInputSize(n int, opts *Options) error {
	maxInput := opts.MaxInputSizeOrDefault()
	if n > maxInput {
		return guarderr.Newf(guarderr.BoundExceeded, 0, "input size %d exceeds maximum %d", n, maxInput)
	}
	return nil
}

func (p *parser) grammarf(format string, args ...any) *guarderr.Error {
	return guarderr.Newf(guarderr.InvalidGrammar, p.pos, format, args...)
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	return p.data[p.pos], true
}

func (p *parser) next() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	b := p.data[p.pos]
	p.pos++
	return b, true
}

func (p *parser) expect(b byte) error {
	c, ok := p.next()
	if !ok {
		return p.grammarf("unexpected end of input, expected %q", string(b))
	}
	if c != b {
		p.pos--
		return p.grammarf("expected %q, got %q", string(b), string(c))
	}
	return nil
}

func (p *parser) skipWhitespace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) pushDepth() error {
	p.depth++
	if p.depth > p.maxDepth {
		return guarderr.Newf(guarderr.RecursionLimitExceeded, p.pos,
			"nesting depth %d exceeds maximum %d", p.depth, p.maxDepth)
	}
	return nil
}

func (p *parser) popDepth() {
	p.depth--
}

func (p *parser) parseValue() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, p.grammarf("unexpected end of input")
	}

	switch c {
	case '{':
		return p.parseObject()
	case '[':
		return p.parseArray()
	case '"':
		return p.parseString()
	case 't':
		return p.parseLiteral("true", true)
	case 'f':
		return p.parseLiteral("false", false)
	case 'n':
		return p.parseLiteral("null", nil)
	default:
		return p.parseNumber()
	}
}

func (p *parser) parseObject() (any, error) {
	if err := p.pushDepth(); err != nil {
		return nil, err
	}
	defer p.popDepth()

	if err := p.expect('{'); err != nil {
		return nil, err
	}
	p.skipWhitespace()

	obj := make(map[string]any)

	c, ok := p.peek()
	if !ok {
		return nil, p.grammarf("unexpected end of input in object")
	}
	if c == '}' {
		p.pos++
		return obj, nil
	}

	for {
		p.skipWhitespace()
		if c, ok := p.peek(); !ok || c != '"' {
			return nil, p.grammarf("expected string for object key")
		}
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}

		p.skipWhitespace()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.skipWhitespace()

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		// Last occurrence of a duplicate key wins.
		obj[key.(string)] = val

		p.skipWhitespace()
		c, ok := p.peek()
		if !ok {
			return nil, p.grammarf("unexpected end of input in object")
		}
		if c == '}' {
			p.pos++
			return obj, nil
		}
		if c == ',' {
			p.pos++
			continue
		}
		return nil, p.grammarf("expected ',' or '}' in object, got %q", string(c))
	}
}

func (p *parser) parseArray() (any, error) {
	if err := p.pushDepth(); err != nil {
		return nil, err
	}
	defer p.popDepth()

	if err := p.expect('['); err != nil {
		return nil, err
	}
	p.skipWhitespace()

	arr := make([]any, 0)

	c, ok := p.peek()
	if !ok {
		return nil, p.grammarf("unexpected end of input in array")
	}
	if c == ']' {
		p.pos++
		return arr, nil
	}

	for {
		p.skipWhitespace()
		elem, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, elem)

		p.skipWhitespace()
		c, ok := p.peek()
		if !ok {
			return nil, p.grammarf("unexpected end of input in array")
		}
		if c == ']' {
			p.pos++
			return arr, nil
		}
		if c == ',' {
			p.pos++
			continue
		}
		return nil, p.grammarf("expected ',' or ']' in array, got %q", string(c))
	}
}

// parseString parses a JSON string and decodes all escapes. Lone surrogates
// in \u escapes decode to U+FFFD, as encoding/json does.
func (p *parser) parseString() (any, error) {
	if err := p.expect('"'); err != nil {
		return nil, err
	}

	start := p.pos
	var buf []byte
	for {
		if p.pos >= len(p.data) {
			return nil, p.grammarf("unterminated string")
		}
		b := p.data[p.pos]

		if b == '"' {
			var s string
			if buf == nil {
				s = string(p.data[start:p.pos])
			} else {
				s = string(buf)
			}
			p.pos++
			return s, nil
		}

		if b == '\\' {
			if buf == nil {
				buf = append([]byte(nil), p.data[start:p.pos]...)
			}
			p.pos++
			r, err := p.parseEscape()
			if err != nil {
				return nil, err
			}
			buf = utf8.AppendRune(buf, r)
			continue
		}

		if b < 0x20 {
			return nil, p.grammarf("unescaped control character 0x%02X in string", b)
		}

		if b < utf8.RuneSelf {
			if buf != nil {
				buf = append(buf, b)
			}
			p.pos++
			continue
		}

		r, size := utf8.DecodeRune(p.data[p.pos:])
		if r == utf8.RuneError && size <= 1 {
			return nil, guarderr.Newf(guarderr.InvalidUTF8, p.pos, "invalid UTF-8 byte 0x%02X in string", b)
		}
		if buf != nil {
			buf = append(buf, p.data[p.pos:p.pos+size]...)
		}
		p.pos += size
	}
}

// parseEscape handles the character after '\'.
func (p *parser) parseEscape() (rune, error) {
	b, ok := p.next()
	if !ok {
		return 0, p.grammarf("unterminated escape sequence")
	}

	switch b {
	case '"':
		return '"', nil
	case '\\':
		return '\\', nil
	case '/':
		return '/', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'u':
		return p.parseUnicodeEscape()
	default:
		p.pos--
		return 0, p.grammarf("invalid escape character %q", string(b))
	}
}

// parseUnicodeEscape parses \uXXXX, joining \uXXXX\uXXXX surrogate pairs.
func (p *parser) parseUnicodeEscape() (rune, error) {
	r1, err := p.readHex4()
	if err != nil {
		return 0, err
	}
	if !utf16.IsSurrogate(r1) {
		return r1, nil
	}
	if r1 >= 0xDC00 {
		return utf8.RuneError, nil
	}
	if p.pos+1 >= len(p.data) || p.data[p.pos] != '\\' || p.data[p.pos+1] != 'u' {
		return utf8.RuneError, nil
	}

	save := p.pos
	p.pos += 2
	r2, err := p.readHex4()
	if err != nil {
		return 0, err
	}
	if decoded := utf16.DecodeRune(r1, r2); decoded != utf8.RuneError {
		return decoded, nil
	}
	// Not a low surrogate: emit U+FFFD and let the next escape stand alone.
	p.pos = save
	return utf8.RuneError, nil
}

// readHex4 reads exactly 4 hex digits.
func (p *parser) readHex4() (rune, error) {
	if p.pos+4 > len(p.data) {
		return 0, p.grammarf("incomplete \\u escape")
	}
	hex := string(p.data[p.pos : p.pos+4])
	val, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, p.grammarf("invalid hex in \\u escape: %q", hex)
	}
	p.pos += 4
	return rune(val), nil
}

func (p *parser) parseNumber() (any, error) {
	start := p.pos

	if p.pos < len(p.data) && p.data[p.pos] == '-' {
		p.pos++
	}

	if p.pos >= len(p.data) {
		return nil, p.grammarf("unexpected end of input in number")
	}

	if p.data[p.pos] == '0' {
		p.pos++
		if p.pos < len(p.data) && isDigit(p.data[p.pos]) {
			return nil, p.grammarf("leading zero in number")
		}
	} else if p.data[p.pos] >= '1' && p.data[p.pos] <= '9' {
		p.skipDigits()
	} else {
		return nil, p.grammarf("invalid character %q looking for beginning of value", string(p.data[p.pos]))
	}

	if p.pos < len(p.data) && p.data[p.pos] == '.' {
		p.pos++
		if p.pos >= len(p.data) || !isDigit(p.data[p.pos]) {
			return nil, p.grammarf("expected digit after decimal point")
		}
		p.skipDigits()
	}

	if p.pos < len(p.data) && (p.data[p.pos] == 'e' || p.data[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.data) && (p.data[p.pos] == '+' || p.data[p.pos] == '-') {
			p.pos++
		}
		if p.pos >= len(p.data) || !isDigit(p.data[p.pos]) {
			return nil, p.grammarf("expected digit in exponent")
		}
		p.skipDigits()
	}

	raw := string(p.data[start:p.pos])
	if p.useNumber {
		return json.Number(raw), nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, guarderr.Newf(guarderr.UnsupportedValue, start, "number %s overflows float64", raw)
	}
	return f, nil
}

func (p *parser) skipDigits() {
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (p *parser) parseLiteral(lit string, v any) (any, error) {
	if p.pos+len(lit) <= len(p.data) && string(p.data[p.pos:p.pos+len(lit)]) == lit {
		p.pos += len(lit)
		return v, nil
	}
	return nil, p.grammarf("invalid literal")
}
