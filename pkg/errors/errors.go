// Package errors holds the translator's error taxonomy: resource exhaustion,
// translation failures and assertion failures for broken invariants.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// ErrCacheExhausted is returned when the executable cache cannot fit a
// function even after purging.
var ErrCacheExhausted = crdb.New("jit cache exhausted")

// ErrNotInitialized is returned by operations on a cache that has not been
// initialized.
var ErrNotInitialized = crdb.New("jit cache not initialized")

// TranslationError reports a failure to turn a control-flow graph into host
// code. It is fatal to the compilation that raised it but not to the process.
type TranslationError struct {
	Message string
	Cause   error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// IsTranslationError checks if an error is a translation error
func IsTranslationError(err error) bool {
	var te *TranslationError
	return crdb.As(err, &te)
}

// WrapTranslationError wraps an existing error as a translation error
func WrapTranslationError(err error, message string) *TranslationError {
	return &TranslationError{
		Message: message,
		Cause:   err,
	}
}

// TranslationErrorf creates a new translation error with formatted message
func TranslationErrorf(format string, args ...interface{}) *TranslationError {
	return &TranslationError{
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Assert panics with an assertion failure when cond is false. Use it for
// precondition and bookkeeping violations, never for recoverable conditions.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(crdb.AssertionFailedf(format, args...))
	}
}

// IsAssertionFailure reports whether v (typically a recovered panic value)
// is an assertion failure raised by Assert.
func IsAssertionFailure(v interface{}) bool {
	err, ok := v.(error)
	return ok && crdb.HasAssertionFailure(err)
}

// Is, As, Wrap and Wrapf forward to cockroachdb/errors so callers need a
// single errors import.
func Is(err, reference error) bool { return crdb.Is(err, reference) }

func As(err error, target interface{}) bool { return crdb.As(err, target) }

func Wrap(err error, msg string) error { return crdb.Wrap(err, msg) }

func Wrapf(err error, format string, args ...interface{}) error {
	return crdb.Wrapf(err, format, args...)
}

func New(msg string) error { return crdb.New(msg) }
