package submissions

import (
	"errors"
	"net/http"
)

// Domain errors for submission history operations.
var (
	ErrNotFound       = errors.New("submission not found")
	ErrDuplicate      = errors.New("submission already exists")
	ErrInvalidID      = errors.New("invalid submission id")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoUser         = errors.New("no authenticated user")
)

// MapHTTPStatus maps submission domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoUser):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
