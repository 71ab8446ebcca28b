// Package errors provides standardized domain errors with codes for binwatch.
//
// Usage:
//
//	// In components - return typed errors
//	if !strategy.Valid() {
//	    return errors.Validationf("unknown backup strategy %q", strategy)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrCancelled) {
//	    return // disposal in progress, nothing to report
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeValidation marks configuration faults: bad strategy, bad target
	// path. Fatal at setup, never retried.
	CodeValidation Code = "VALIDATION"
	// CodeWatch marks watcher setup or runtime faults. Reported as a
	// lifecycle error event; the session stays alive.
	CodeWatch Code = "WATCH"
	// CodeCopy marks a backup copy failure that survived the retry budget.
	CodeCopy Code = "COPY"
	// CodeController marks stop/start faults from the target controller.
	CodeController Code = "CONTROLLER"
	// CodeCancelled marks failures caused by session disposal mid-operation.
	// Always swallowed, never surfaced to the caller.
	CodeCancelled Code = "CANCELLED"
	// CodeInternal marks programmer errors (bad retry budget and the like).
	CodeInternal Code = "INTERNAL"
)

// Error is a domain error with a code, message, and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrWatch      = &Error{Code: CodeWatch, Message: "watch error"}
	ErrCopy       = &Error{Code: CodeCopy, Message: "copy error"}
	ErrController = &Error{Code: CodeController, Message: "controller error"}
	ErrCancelled  = &Error{Code: CodeCancelled, Message: "cancelled"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Watch creates a watch error.
func Watch(msg string) *Error {
	return &Error{Code: CodeWatch, Message: msg}
}

// Copy creates a copy error.
func Copy(msg string) *Error {
	return &Error{Code: CodeCopy, Message: msg}
}

// Controller creates a controller error.
func Controller(msg string) *Error {
	return &Error{Code: CodeController, Message: msg}
}

// Cancelled creates a cancellation error.
func Cancelled(msg string) *Error {
	return &Error{Code: CodeCancelled, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
