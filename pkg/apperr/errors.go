// Package apperr is the error taxonomy shared by the store, the services and
// the transport. Every failure a caller sees carries a Kind and a message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindNotFound: the referenced project, query, access row or user does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindPermissionDenied: no access row, or the resolved role is too low.
	KindPermissionDenied Kind = "PERMISSION_DENIED"

	// KindConstraintViolation: unique pair, foreign key or role enumeration
	// violation reported by the store.
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"

	// KindInvalidArgument: malformed caller input, rejected before touching the store.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindInternal: unexpected store failure or verification engine failure.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInternal            = &Error{Kind: KindInternal}
)

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Constraint wraps a store constraint violation.
func Constraint(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConstraintViolation, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message of err: the classified message
// when there is one, otherwise the full error text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Wrap classifies err as Internal unless it already carries a kind.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(err, format, args...)
}
