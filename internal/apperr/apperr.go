// Package apperr classifies failures so the HTTP layer can map them to a
// status code in one place.
package apperr

import (
	"errors"
	"net/http"
)

// Kind identifies a class of failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthenticated
	KindInvalidCredentials
	KindNotFound
	KindMethodNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotFound:
		return "not_found"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal"
	}
}

// Error is a classified application error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error {
	return newError(KindValidation, message)
}

func Conflict(message string) *Error {
	return newError(KindConflict, message)
}

func Unauthenticated(message string) *Error {
	return newError(KindUnauthenticated, message)
}

func InvalidCredentials(message string) *Error {
	return newError(KindInvalidCredentials, message)
}

func NotFound(message string) *Error {
	return newError(KindNotFound, message)
}

func MethodNotAllowed(message string) *Error {
	return newError(KindMethodNotAllowed, message)
}

// Wrap marks err as an internal failure described by message.
func Wrap(err error, message string) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err.
// Internal failures never leak their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Something went wrong. Please try again later."
}
