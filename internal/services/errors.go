package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures for the HTTP layer.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindForbidden     ErrorKind = "FORBIDDEN"
	KindConflict      ErrorKind = "CONFLICT"
	KindUpstream      ErrorKind = "UPSTREAM"
	KindConfiguration ErrorKind = "CONFIGURATION"
)

// Error is a typed domain failure. Anything that is not an *Error is unexpected.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func UnauthorizedError(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func ForbiddenError(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func ConflictError(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func ConfigurationError(format string, args ...any) *Error {
	return newError(KindConfiguration, format, args...)
}

// UpstreamError wraps a processor failure.
func UpstreamError(err error, format string, args ...any) *Error {
	e := newError(KindUpstream, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of a domain error, or "" for unexpected errors.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
