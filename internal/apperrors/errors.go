// Package apperrors defines the coded error taxonomy used across the service
// and its mapping to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Every error that crosses a package boundary carries one.
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"  // missing or invalid caller identity
	ErrCodeForbidden    = "FORBIDDEN"     // authenticated but not entitled
	ErrCodeInvalidInput = "INVALID_INPUT" // malformed or missing input
	ErrCodeNotFound     = "NOT_FOUND"     // entity absent
	ErrCodeConflict     = "CONFLICT"      // invalid state transition, stale state
	ErrCodeUnavailable  = "UNAVAILABLE"   // transient store or network fault
	ErrCodeInternal     = "INTERNAL"      // everything else
)

// Error is a coded application error.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message, preserving the cause.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound creates a NOT_FOUND error for an entity and its identifier.
func NotFound(entity, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// InvalidInput creates an INVALID_INPUT error for a named field.
func InvalidInput(field, reason string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// SelfTarget creates an INVALID_INPUT error for a request aimed at the
// creator's own recipient key.
func SelfTarget(key string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("request cannot target the creator's own recipient %q", key)}
}

// InvalidTransition creates a CONFLICT error for a workflow action that is not
// valid in the request's current status.
func InvalidTransition(action, status string) *Error {
	return &Error{Code: ErrCodeConflict, Message: fmt.Sprintf("action %q is not allowed in status %q", action, status)}
}

// Code returns the code of err, or INTERNAL when err carries none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error to the status code its class is reported with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
