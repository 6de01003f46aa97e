// Package jsonenc implements the recursion-safe half of json-guard encoding.
//
// Encoding happens in two steps. Resolve walks an arbitrary Go value graph
// and produces a resolved tree made only of nil, bool, string, json.Number,
// int64, uint64, float32, float64, []any and map[string]any. The walk is
// where every recursion guard lives:
//
//   - cycle detection through a marker set of the maps, slices and pointers
//     on the active descent path,
//   - a depth counter shared by containers, pointers and fallback results,
//   - the caller's Fallback for values with no native representation.
//
// The resolved tree is acyclic and within the depth limit, so any emitter
// (Marshal here, go-json, CBOR, MessagePack) can serialize it without
// further checks.
package jsonenc

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"unsafe"

	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/jsontoken"
)

// DefaultMaxDepth is the maximum nesting depth of an encoded value. It
// matches the decoder's limit.
const DefaultMaxDepth = jsontoken.DefaultMaxDepth

// ErrNotSerializable is the error a Fallback returns for values it cannot
// convert either. It surfaces as an UNSUPPORTED_TYPE failure.
var ErrNotSerializable = errors.New("value is not JSON serializable")

// Fallback converts a value the encoder cannot represent into one it can, or
// into another value that needs converting in turn. Each call counts as one
// level of nesting.
type Fallback func(v any) (any, error)

// Options controls encoding. A nil *Options means DefaultOptions().
type Options struct {
	// CheckCircular enables the cycle marker set. Without it, cycles are
	// caught only by the depth limit.
	CheckCircular bool

	// Fallback is called for values with no native representation.
	Fallback Fallback

	// SkipKeys drops map entries whose keys are not strings, integers,
	// floats or bools instead of failing.
	SkipKeys bool

	// MaxDepth bounds nesting; 0 means DefaultMaxDepth.
	MaxDepth int
}

// DefaultOptions returns options with cycle detection enabled.
func DefaultOptions() *Options {
	return &Options{CheckCircular: true}
}

// MaxDepthOrDefault returns the effective depth limit.
func (o *Options) MaxDepthOrDefault() int {
	if o != nil && o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

var numberType = reflect.TypeOf(json.Number(""))

// ptrID identifies a pointer or map by address and type. A pointer to an
// array and a pointer to its first element share an address but are
// different values.
type ptrID struct {
	p unsafe.Pointer
	t reflect.Type
}

// sliceID identifies a slice by its backing array, length and type. Two
// slices sharing a backing array with different lengths are different
// values.
type sliceID struct {
	ptr unsafe.Pointer
	len int
	t   reflect.Type
}

// walker holds the state of one top-level Resolve call. It is never shared.
type walker struct {
	opts     *Options
	depth    int
	maxDepth int
	seen     map[any]struct{} // nil when cycle detection is off
}

// Resolve walks v and returns its resolved tree. Failures are
// *guarderr.Error values with Offset set to the nesting depth:
//   - CIRCULAR_REFERENCE when a map, slice or pointer is reached again
//     while it is still being encoded,
//   - RECURSION_LIMIT_EXCEEDED when nesting exceeds the depth limit,
//   - UNSUPPORTED_TYPE when a value has no representation and the Fallback
//     is missing or fails,
//   - UNSUPPORTED_VALUE for NaN, infinities and malformed json.Number.
func Resolve(v any, opts *Options) (any, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	w := &walker{
		opts:     opts,
		maxDepth: opts.MaxDepthOrDefault(),
	}
	if opts.CheckCircular {
		w.seen = make(map[any]struct{})
	}
	return w.walk(reflect.ValueOf(v))
}

// enter opens one nesting level for the value identified by id (nil for
// values without identity). On failure it leaves the walker unchanged.
func (w *walker) enter(id any) error {
	if w.depth >= w.maxDepth {
		return guarderr.Newf(guarderr.RecursionLimitExceeded, w.depth+1,
			"nesting depth %d exceeds maximum %d", w.depth+1, w.maxDepth)
	}
	if w.seen != nil && id != nil {
		if _, ok := w.seen[id]; ok {
			return guarderr.New(guarderr.CircularReference, w.depth, "circular reference detected")
		}
		w.seen[id] = struct{}{}
	}
	w.depth++
	return nil
}

func (w *walker) leave(id any) {
	w.depth--
	if w.seen != nil && id != nil {
		delete(w.seen, id)
	}
}

func (w *walker) walk(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	if v.Type() == numberType {
		return w.number(json.Number(v.String()))
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return w.walk(v.Elem())
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32:
		f := v.Float()
		if err := w.checkFinite(f); err != nil {
			return nil, err
		}
		return float32(f), nil
	case reflect.Float64:
		f := v.Float()
		if err := w.checkFinite(f); err != nil {
			return nil, err
		}
		return f, nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return w.unsupported(v)
		}
		var id any
		if v.Len() > 0 {
			id = sliceID{ptr: v.UnsafePointer(), len: v.Len(), t: v.Type()}
		}
		return w.sequence(v, id)
	case reflect.Array:
		return w.sequence(v, nil)
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return w.mapping(v)
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if v.Elem().Kind() == reflect.Struct {
			return w.unsupported(v)
		}
		id := ptrID{v.UnsafePointer(), v.Type()}
		if err := w.enter(id); err != nil {
			return nil, err
		}
		defer w.leave(id)
		return w.walk(v.Elem())
	default:
		return w.unsupported(v)
	}
}

func (w *walker) sequence(v reflect.Value, id any) (any, error) {
	if err := w.enter(id); err != nil {
		return nil, err
	}
	defer w.leave(id)

	n := v.Len()
	out := make([]any, n)
	for i := 0; i < n; i++ {
		elem, err := w.walk(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func (w *walker) mapping(v reflect.Value) (any, error) {
	id := ptrID{v.UnsafePointer(), v.Type()}
	if err := w.enter(id); err != nil {
		return nil, err
	}
	defer w.leave(id)

	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, ok, err := w.key(iter.Key())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		val, err := w.walk(iter.Value())
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// key converts a map key the way JSON object keys are spelled. ok is false
// when the key is skipped.
func (w *walker) key(k reflect.Value) (string, bool, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), true, nil
	case reflect.Float32, reflect.Float64:
		f := k.Float()
		if err := w.checkFinite(f); err != nil {
			return "", false, err
		}
		bits := 64
		if k.Kind() == reflect.Float32 {
			bits = 32
		}
		return string(appendFloat(nil, f, bits)), true, nil
	case reflect.Bool:
		if k.Bool() {
			return "true", true, nil
		}
		return "false", true, nil
	case reflect.Interface:
		if k.IsNil() {
			return "null", true, nil
		}
		return w.key(k.Elem())
	}
	if w.opts.SkipKeys {
		return "", false, nil
	}
	return "", false, guarderr.Newf(guarderr.UnsupportedType, w.depth,
		"keys must be str, int, float or bool, not %s", k.Type())
}

// unsupported hands v to the Fallback and walks the replacement one level
// deeper. While the replacement is walked, v itself stays marked, so a
// Fallback that returns its own input again is reported as a cycle.
func (w *walker) unsupported(v reflect.Value) (any, error) {
	if w.opts.Fallback == nil || !v.CanInterface() {
		return nil, guarderr.Wrap(guarderr.UnsupportedType, w.depth,
			"value of type "+v.Type().String()+" cannot be encoded", ErrNotSerializable)
	}

	id := identity(v)
	if err := w.enter(id); err != nil {
		return nil, err
	}
	defer w.leave(id)

	repl, err := w.opts.Fallback(v.Interface())
	if err != nil {
		var ge *guarderr.Error
		if errors.As(err, &ge) {
			return nil, err
		}
		return nil, guarderr.Wrap(guarderr.UnsupportedType, w.depth,
			"value of type "+v.Type().String()+" cannot be encoded", err)
	}
	return w.walk(reflect.ValueOf(repl))
}

func identity(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			return nil
		}
		return ptrID{v.UnsafePointer(), v.Type()}
	case reflect.Slice:
		if v.Len() == 0 {
			return nil
		}
		return sliceID{ptr: v.UnsafePointer(), len: v.Len(), t: v.Type()}
	}
	return nil
}

func (w *walker) checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return guarderr.Newf(guarderr.UnsupportedValue, w.depth,
			"float value %s is out of range for JSON", strconv.FormatFloat(f, 'g', -1, 64))
	}
	return nil
}

func (w *walker) number(n json.Number) (any, error) {
	if !isValidNumber(string(n)) {
		return nil, guarderr.Newf(guarderr.UnsupportedValue, w.depth, "invalid number literal %q", string(n))
	}
	return n, nil
}

// isValidNumber reports whether s is a JSON number literal.
func isValidNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
		if s == "" {
			return false
		}
	}
	switch {
	case s[0] == '0':
		s = s[1:]
	case '1' <= s[0] && s[0] <= '9':
		s = s[1:]
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	default:
		return false
	}
	if len(s) >= 2 && s[0] == '.' && isDigit(s[1]) {
		s = s[2:]
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	}
	if len(s) >= 2 && (s[0] == 'e' || s[0] == 'E') {
		s = s[1:]
		if s[0] == '+' || s[0] == '-' {
			s = s[1:]
			if s == "" {
				return false
			}
		}
		for len(s) > 0 && isDigit(s[0]) {
			s = s[1:]
		}
	}
	return s == ""
}

func isDigit(b byte) bool {
	return '0' <= b && b <= '9'
}
