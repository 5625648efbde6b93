package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures. The HTTP layer maps each kind to exactly one status.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindConflict           ErrorKind = "conflict"
)

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its kind.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied, Message: "permission denied"}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation, Message: "invariant violation"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
)

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// ValidationError builds a KindValidation error, optionally carrying field-level messages.
func ValidationError(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// NotFoundError builds a KindNotFound error.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PermissionDeniedError builds a KindPermissionDenied error.
func PermissionDeniedError(format string, args ...any) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// InvariantViolationError builds a KindInvariantViolation error.
func InvariantViolationError(format string, args ...any) *Error {
	return &Error{Kind: KindInvariantViolation, Message: fmt.Sprintf(format, args...)}
}

// ConflictError builds a KindConflict error wrapping the storage cause, if any.
func ConflictError(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
