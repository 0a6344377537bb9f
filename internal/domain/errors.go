package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors for the collaboration core. Callers classify with
// errors.Is and map to transport codes via HTTPStatus.
var (
	// ErrInvalidURL marks input that cannot be turned into a room identity.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnauthorized marks a missing or bad credential. Connections fail closed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks an action the authenticated user may not perform.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks operations on comments/sessions that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a malformed payload. The message is rejected,
	// the connection stays alive.
	ErrValidation = errors.New("validation failed")
)

// HTTPStatus maps a core error to the status code of the synchronous API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidURL):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the wire-level error code for a core error.
// Used in websocket error payloads and JSON error responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	default:
		return "internal"
	}
}
