package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrForbidden        = fmt.Errorf("not a participant in this conversation")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrInvalidOperation = fmt.Errorf("invalid operation")
	ErrNotFound         = fmt.Errorf("not found")

	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrInvalidToken      = fmt.Errorf("invalid or expired token")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrUnknownEvent      = fmt.Errorf("unknown realtime event")
	ErrInvalidChannel    = fmt.Errorf("invalid realtime channel")
	ErrConnectionBacklog = fmt.Errorf("connection buffer is full")
	ErrSearchDisabled    = fmt.Errorf("message search is disabled")
)

// InputError carries the offending field so the HTTP layer can report it.
// It always matches ErrInvalidInput.
type InputError struct {
	Field  string
	Reason string
}

func NewInputError(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// HTTPStatus maps the error taxonomy onto status codes.
// Unknown errors are internal.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case goerrors.Is(err, ErrUnauthorized), goerrors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case goerrors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case goerrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case goerrors.Is(err, ErrInvalidInput), goerrors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case goerrors.Is(err, ErrSearchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FieldOf returns the field named by an InputError, if any.
func FieldOf(err error) string {
	var inputErr *InputError
	if goerrors.As(err, &inputErr) {
		return inputErr.Field
	}
	return ""
}
