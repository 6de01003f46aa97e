package guarderr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lattice-substrate/json-guard/guarderr"
)

func TestFailureClassExitCodes(t *testing.T) {
	cases := []struct {
		class    guarderr.FailureClass
		wantExit int
	}{
		{guarderr.CircularReference, 2},
		{guarderr.RecursionLimitExceeded, 2},
		{guarderr.UnsupportedType, 2},
		{guarderr.UnsupportedValue, 2},
		{guarderr.InvalidGrammar, 2},
		{guarderr.InvalidUTF8, 2},
		{guarderr.InvalidEncoding, 2},
		{guarderr.BoundExceeded, 2},
		{guarderr.CLIUsage, 2},
		{guarderr.InternalIO, 10},
		{guarderr.InternalError, 10},
	}
	for _, tc := range cases {
		if got := tc.class.ExitCode(); got != tc.wantExit {
			t.Errorf("%s.ExitCode() = %d, want %d", tc.class, got, tc.wantExit)
		}
	}
}

func TestErrorFormat(t *testing.T) {
	e := guarderr.New(guarderr.RecursionLimitExceeded, 1001, "nesting depth 1001 exceeds maximum 1000")
	want := "guarderr: RECURSION_LIMIT_EXCEEDED at 1001: nesting depth 1001 exceeds maximum 1000"
	if e.Error() != want {
		t.Fatalf("unexpected error string: %s", e.Error())
	}
}

func TestErrorFormatNoOffset(t *testing.T) {
	e := guarderr.Newf(guarderr.InternalError, -1, "unexpected state %d", 3)
	if e.Error() != "guarderr: INTERNAL_ERROR: unexpected state 3" {
		t.Fatalf("unexpected error string: %s", e.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	e := guarderr.Wrap(guarderr.InternalIO, -1, "write failed", cause)
	if !errors.Is(e, cause) {
		t.Fatal("Unwrap did not return cause")
	}
	if got := e.Error(); got != "guarderr: INTERNAL_IO: write failed: underlying" {
		t.Fatalf("unexpected wrapped error string: %s", got)
	}
}

func TestErrorAs(t *testing.T) {
	e := guarderr.New(guarderr.CircularReference, 2, "circular reference detected")
	var target *guarderr.Error
	if !errors.As(fmt.Errorf("outer: %w", e), &target) {
		t.Fatal("errors.As failed")
	}
	if target.Class != guarderr.CircularReference {
		t.Fatalf("class = %s, want CIRCULAR_REFERENCE", target.Class)
	}
}

func TestClassOf(t *testing.T) {
	wrapped := fmt.Errorf("encode: %w", guarderr.New(guarderr.UnsupportedType, 0, "complex128"))
	if got := guarderr.ClassOf(wrapped); got != guarderr.UnsupportedType {
		t.Fatalf("ClassOf = %s, want UNSUPPORTED_TYPE", got)
	}
	if got := guarderr.ClassOf(errors.New("plain")); got != guarderr.InternalError {
		t.Fatalf("ClassOf(plain) = %s, want INTERNAL_ERROR", got)
	}
	if guarderr.Is(nil, guarderr.InternalError) {
		t.Fatal("Is(nil) should be false")
	}
	if !guarderr.Is(wrapped, guarderr.UnsupportedType) {
		t.Fatal("Is(wrapped, UNSUPPORTED_TYPE) = false")
	}
}
