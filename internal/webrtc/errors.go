package webrtc

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	ErrorKindResourceNotFound ErrorKind = "ResourceNotFound"
	ErrorKindNotAvailable     ErrorKind = "NotAvailable"
	ErrorKindInvalidRequest   ErrorKind = "InvalidRequest"
	ErrorKindUnexpected       ErrorKind = "Unexpected"
)

// Error is what every relay operation fails with. Handlers map the kind to a
// status code and nothing retries.
type Error struct {
	Kind    ErrorKind `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

func (e *Error) StatusCode() int {
	switch e.Kind {
	case ErrorKindResourceNotFound:
		return http.StatusNotFound
	case ErrorKindNotAvailable:
		return http.StatusForbidden
	case ErrorKindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: ErrorKindResourceNotFound, Message: fmt.Sprintf(format, args...)}
}

func notAvailable(format string, args ...any) *Error {
	return &Error{Kind: ErrorKindNotAvailable, Message: fmt.Sprintf(format, args...)}
}

func invalidRequest(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrorKindInvalidRequest, Message: fmt.Sprintf(format, args...), Err: err}
}

func unexpected(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrorKindUnexpected, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError returns err as a relay error, treating anything unknown as unexpected
func AsError(err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}

	return unexpected(err, "unexpected error")
}
