package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether to retry,
// prompt for more input, or give up.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindValidation   Kind = "VALIDATION"
	KindConflict     Kind = "CONFLICT"
	KindPersistence  Kind = "PERSISTENCE"
)

// Error carries a stable kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with a kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Forbidden creates a FORBIDDEN error.
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

// InvalidState creates an INVALID_STATE error.
func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Conflict creates a CONFLICT error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// Persistence wraps a storage-layer failure.
func Persistence(err error, format string, args ...interface{}) *Error {
	return Wrap(KindPersistence, err, format, args...)
}

// KindOf returns the kind of err, or KindPersistence for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
