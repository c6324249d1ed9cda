// Package errors provides structured error types for the stitchkb pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the worker
//   - Machine-readable error codes for programmatic handling
//   - An explicit retry decision (transient vs fatal store errors) instead
//     of inspecting nested cause chains
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: malformed input (identifier text, document shape)
//   - STORE_*: persistence failures, split by retryability
//   - QUEUE_* / STORAGE_*: messaging and shared-storage boundary failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidIdent, "empty product in %q", text)
//	if errors.Is(err, errors.ErrCodeInvalidIdent) {
//	    // Reject the artifact, never retry.
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStoreTransient, origErr, "insert callables")
//	if errors.IsTransient(err) {
//	    // Restart the transaction.
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input format errors: reject the artifact, never retry.
	ErrCodeInvalidIdent    Code = "INVALID_IDENTIFIER"
	ErrCodeInvalidDocument Code = "INVALID_DOCUMENT"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Store errors. STORE_TRANSIENT covers conflicting concurrent writes
	// (serialization failures, deadlocks, unique races) and connection
	// hiccups; these are retried up to the configured budget. Everything
	// else from the store is STORE_FATAL and aborts immediately.
	ErrCodeStoreTransient Code = "STORE_TRANSIENT"
	ErrCodeStoreFatal     Code = "STORE_FATAL"

	// Boundary errors
	ErrCodeQueue   Code = "QUEUE_ERROR"
	ErrCodeStorage Code = "STORAGE_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err is a transient store error worth retrying
// in a fresh transaction.
func IsTransient(err error) bool {
	return Is(err, ErrCodeStoreTransient)
}

// IsFormat reports whether err is a format error (malformed identifier text
// or document shape). Format errors reject a single artifact and are never
// retried.
func IsFormat(err error) bool {
	return Is(err, ErrCodeInvalidIdent) || Is(err, ErrCodeInvalidDocument)
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
