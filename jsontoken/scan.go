package jsontoken

import (
	"unicode/utf8"

	"github.com/lattice-substrate/json-guard/guarderr"
)

// ScanDepth validates data without building any values and returns the
// maximum nesting depth it contains.
//
// It applies the same grammar, UTF-8, number and depth rules as
// ParseWithOptions and fails with the same class at the same offset, so a
// decoder placed behind it only ever sees input the pure parser would
// accept. Nesting is tracked iteratively with one bit per open level: the
// scanner's state is bounded by MaxDepth, not by the input, and hostile
// input is rejected at the first bracket that opens a level beyond it.
func ScanDepth(data []byte, opts *Options) (int, error) {
	if err := CheckInputSize(len(data), opts); err != nil {
		return 0, err
	}
	s := &scanner{parser: parser{
		data:      data,
		maxDepth:  opts.MaxDepthOrDefault(),
		useNumber: opts.useNumber(),
	}}

	needValue := true
	for {
		s.skipWhitespace()
		var err error
		if needValue {
			needValue, err = s.value()
			if err != nil {
				return 0, err
			}
			continue
		}
		if s.depth == 0 {
			if s.pos != len(s.data) {
				return 0, s.grammarf("trailing content after JSON value")
			}
			return s.deepest, nil
		}
		needValue, err = s.afterValue()
		if err != nil {
			return 0, err
		}
	}
}

type scanner struct {
	parser
	deepest int
	kinds   []uint64 // bit i set: level i+1 is an object
}

func (s *scanner) open(object bool) error {
	if err := s.pushDepth(); err != nil {
		return err
	}
	s.deepest = max(s.deepest, s.depth)
	i := s.depth - 1
	if i/64 == len(s.kinds) {
		s.kinds = append(s.kinds, 0)
	}
	if object {
		s.kinds[i/64] |= 1 << (i % 64)
	} else {
		s.kinds[i/64] &^= 1 << (i % 64)
	}
	return nil
}

func (s *scanner) inObject() bool {
	i := s.depth - 1
	return s.kinds[i/64]&(1<<(i%64)) != 0
}

// value consumes one value, or only the opening of a non-empty container.
// more reports that a member value must follow.
func (s *scanner) value() (more bool, err error) {
	c, ok := s.peek()
	if !ok {
		return false, s.grammarf("unexpected end of input")
	}

	switch c {
	case '[', '{':
		object := c == '{'
		if err := s.open(object); err != nil {
			return false, err
		}
		s.pos++
		s.skipWhitespace()
		c, ok := s.peek()
		if !ok {
			if object {
				return false, s.grammarf("unexpected end of input in object")
			}
			return false, s.grammarf("unexpected end of input in array")
		}
		if object && c == '}' || !object && c == ']' {
			s.pos++
			s.popDepth()
			return false, nil
		}
		if object {
			return true, s.key()
		}
		return true, nil
	case '"':
		return false, s.skipString()
	case 't':
		_, err = s.parseLiteral("true", true)
	case 'f':
		_, err = s.parseLiteral("false", false)
	case 'n':
		_, err = s.parseLiteral("null", nil)
	default:
		_, err = s.parseNumber()
	}
	return false, err
}

// key consumes an object key and its colon.
func (s *scanner) key() error {
	s.skipWhitespace()
	if c, ok := s.peek(); !ok || c != '"' {
		return s.grammarf("expected string for object key")
	}
	if err := s.skipString(); err != nil {
		return err
	}
	s.skipWhitespace()
	return s.expect(':')
}

// afterValue consumes the separator or closing bracket after a member.
func (s *scanner) afterValue() (more bool, err error) {
	object := s.inObject()
	c, ok := s.peek()
	switch {
	case !ok && object:
		return false, s.grammarf("unexpected end of input in object")
	case !ok:
		return false, s.grammarf("unexpected end of input in array")
	case c == ',':
		s.pos++
		if object {
			return true, s.key()
		}
		return true, nil
	case object && c == '}', !object && c == ']':
		s.pos++
		s.popDepth()
		return false, nil
	case object:
		return false, s.grammarf("expected ',' or '}' in object, got %q", string(c))
	default:
		return false, s.grammarf("expected ',' or ']' in array, got %q", string(c))
	}
}

// skipString checks a string with the rules of parseString without
// decoding it.
func (s *scanner) skipString() error {
	if err := s.expect('"'); err != nil {
		return err
	}
	for {
		if s.pos >= len(s.data) {
			return s.grammarf("unterminated string")
		}
		b := s.data[s.pos]
		switch {
		case b == '"':
			s.pos++
			return nil
		case b == '\\':
			s.pos++
			if _, err := s.parseEscape(); err != nil {
				return err
			}
		case b < 0x20:
			return s.grammarf("unescaped control character 0x%02X in string", b)
		case b < utf8.RuneSelf:
			s.pos++
		default:
			r, size := utf8.DecodeRune(s.data[s.pos:])
			if r == utf8.RuneError && size <= 1 {
				return guarderr.Newf(guarderr.InvalidUTF8, s.pos, "invalid UTF-8 byte 0x%02X in string", b)
			}
			s.pos += size
		}
	}
}
