// Package apperr defines the failure taxonomy shared by the identity
// service layers and its mapping onto HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrBadRequest      = errors.New("bad_request")
	ErrUserDeleted     = errors.New("user_deleted")
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrInternal        = errors.New("internal")
	// ErrUnavailable marks cache or store I/O failures; callers may retry.
	ErrUnavailable = errors.New("unavailable")
)

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}

// Unavailable wraps an infrastructure error so that errors.Is reports both
// ErrUnavailable and the underlying cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserDeleted):
		return http.StatusGone
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the opaque error code written to clients.
func Code(err error) string {
	switch HTTPStatus(err) {
	case http.StatusUnauthorized:
		return ErrUnauthorized.Error()
	case http.StatusForbidden:
		return ErrForbidden.Error()
	case http.StatusNotFound:
		return ErrNotFound.Error()
	case http.StatusConflict:
		return ErrConflict.Error()
	case http.StatusBadRequest:
		return ErrBadRequest.Error()
	case http.StatusGone:
		return ErrUserDeleted.Error()
	case http.StatusServiceUnavailable:
		return ErrUnavailable.Error()
	default:
		return "server_error"
	}
}
