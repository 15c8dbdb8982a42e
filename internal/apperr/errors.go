// Package apperr defines the error taxonomy shared by the fetch pipeline,
// the directory and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of an error
type Kind int

const (
	// NetworkError: the request could not be sent, no response arrived,
	// or the backend answered with a non-2xx status.
	NetworkError Kind = iota
	// DecodeError: the response body does not have the expected shape.
	DecodeError
	// NotFoundLocally: a referenced project/endpoint/device/sensor id has no
	// match in the current state. Not a network condition.
	NotFoundLocally
	// ValidationError: rejected user input (empty or duplicate name, ...).
	ValidationError
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case NetworkError:
		return "Network Error"
	case DecodeError:
		return "Decode Error"
	case NotFoundLocally:
		return "Not Found"
	case ValidationError:
		return "Validation Error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the concrete error type carrying a Kind
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // HTTP status from the backend, 0 if none
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network creates a NetworkError
func Network(message string, err error) *Error {
	return &Error{Kind: NetworkError, Message: message, Err: err}
}

// HTTPStatus creates a NetworkError for an unusable backend status code
func HTTPStatus(statusCode int, body string) *Error {
	msg := fmt.Sprintf("unexpected status %d", statusCode)
	if body != "" {
		msg += " (" + body + ")"
	}
	return &Error{Kind: NetworkError, Message: msg, StatusCode: statusCode}
}

// Decode creates a DecodeError
func Decode(message string, err error) *Error {
	return &Error{Kind: DecodeError, Message: message, Err: err}
}

// NotFound creates a NotFoundLocally error
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: NotFoundLocally, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a ValidationError
func Validation(format string, args ...any) *Error {
	return &Error{Kind: ValidationError, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err and whether err carries one
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err (or anything it wraps) is an *Error of kind k
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// HTTPStatusFor maps an error to the status the panel API answers with
func HTTPStatusFor(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundLocally:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
