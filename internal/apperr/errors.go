// Package apperr holds the error taxonomy shared by the stores, the
// conversation service and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error pairs a taxonomy sentinel with the message shown to the caller and an
// optional underlying cause that is logged but never exposed.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

func BadRequest(msg string) error { return &Error{Kind: ErrBadRequest, Msg: msg} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Msg: msg} }

// Unavailable wraps a store or transport failure.
func Unavailable(op string, cause error) error {
	return &Error{Kind: ErrUnavailable, Msg: op, Cause: cause}
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the human readable part of err that is safe to return to a
// client. Causes of Unavailable errors and unclassified errors are hidden.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == ErrUnavailable {
			return "service unavailable, try again"
		}
		if ae.Msg != "" {
			return ae.Msg
		}
		return ae.Kind.Error()
	}
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
