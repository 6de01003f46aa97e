// Package guarderr defines the failure taxonomy for json-guard.
//
// Every error returned by the decoder, the encoder, or the CLI maps to exactly
// one FailureClass, which determines the exit code and lets tests assert how
// an input failed, not just that it failed.
package guarderr

import (
	"errors"
	"fmt"
)

// FailureClass is a stable failure category.
type FailureClass string

const (
	CircularReference      FailureClass = "CIRCULAR_REFERENCE"
	RecursionLimitExceeded FailureClass = "RECURSION_LIMIT_EXCEEDED"
	UnsupportedType        FailureClass = "UNSUPPORTED_TYPE"
	UnsupportedValue       FailureClass = "UNSUPPORTED_VALUE"
	InvalidGrammar         FailureClass = "INVALID_GRAMMAR"
	InvalidUTF8            FailureClass = "INVALID_UTF8"
	InvalidEncoding        FailureClass = "INVALID_ENCODING"
	BoundExceeded          FailureClass = "BOUND_EXCEEDED"
	CLIUsage               FailureClass = "CLI_USAGE"
	InternalIO             FailureClass = "INTERNAL_IO"
	InternalError          FailureClass = "INTERNAL_ERROR"
)

// ExitCode returns the process exit code for this failure class.
func (fc FailureClass) ExitCode() int {
	switch fc {
	case InternalIO, InternalError:
		return 10
	default:
		return 2
	}
}

// Error is the structured error type for all json-guard failures.
//
// Offset is a byte offset for decode failures and a nesting depth for encode
// failures. It is -1 when neither applies.
type Error struct {
	Class   FailureClass
	Offset  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("guarderr: %s at %d: %s", e.Class, e.Offset, msg)
	}
	return fmt.Sprintf("guarderr: %s: %s", e.Class, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given class and message.
func New(class FailureClass, offset int, message string) *Error {
	return &Error{Class: class, Offset: offset, Message: message}
}

// Newf is like New but formats the message.
func Newf(class FailureClass, offset int, format string, args ...any) *Error {
	return &Error{Class: class, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(class FailureClass, offset int, message string, cause error) *Error {
	return &Error{Class: class, Offset: offset, Message: message, Cause: cause}
}

// ClassOf returns the class of the first *Error in err's chain, or
// InternalError when the chain carries no classification.
func ClassOf(err error) FailureClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return InternalError
}

// Is reports whether err carries the given failure class.
func Is(err error, class FailureClass) bool {
	if err == nil {
		return false
	}
	return ClassOf(err) == class
}
