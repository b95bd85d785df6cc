package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorises every failure the API can surface. The set is
// closed; handlers map kinds to HTTP status codes via HTTPStatus.
type ErrorKind string

const (
	// ErrKindNotFound indicates an unknown channel id or missing layout.
	ErrKindNotFound ErrorKind = "not-found"

	// ErrKindBadLayout indicates a layout schema or invariant violation.
	ErrKindBadLayout ErrorKind = "bad-layout"

	// ErrKindBadGeometry indicates custom slot bounds or aspect violations.
	ErrKindBadGeometry ErrorKind = "bad-geometry"

	// ErrKindSourceUnavailable indicates the catalog source could not be fetched.
	ErrKindSourceUnavailable ErrorKind = "source-unavailable"

	// ErrKindEncoderFailed indicates the encoder child exited non-zero
	// within the start deadline.
	ErrKindEncoderFailed ErrorKind = "encoder-failed"

	// ErrKindStartupTimeout indicates a cold start produced no bytes
	// within the startup deadline.
	ErrKindStartupTimeout ErrorKind = "startup-timeout"

	// ErrKindBusy indicates a conflicting transition was in flight.
	ErrKindBusy ErrorKind = "busy"

	// ErrKindInternal indicates an unexpected server-side failure.
	ErrKindInternal ErrorKind = "internal"
)

// DomainError is the error type carried across package boundaries. It
// wraps an optional cause and renders as the {error, detail} envelope.
type DomainError struct {
	Kind   ErrorKind
	Detail string
	cause  error
}

// NewError creates a DomainError with a formatted detail message.
func NewError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError creates a DomainError wrapping an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: err}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// KindOf extracts the ErrorKind from an error chain, defaulting to
// ErrKindInternal for errors that carry no kind.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrKindInternal
}

// DetailOf extracts the human-readable detail from an error chain.
func DetailOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Detail
	}
	return err.Error()
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindBadLayout, ErrKindBadGeometry:
		return http.StatusBadRequest
	case ErrKindSourceUnavailable:
		return http.StatusBadGateway
	case ErrKindEncoderFailed:
		return http.StatusInternalServerError
	case ErrKindStartupTimeout:
		return http.StatusGatewayTimeout
	case ErrKindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
