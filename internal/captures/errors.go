package captures

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/submission"
	"github.com/JaimeStill/loam/pkg/validation"
)

// Domain errors for capture session operations.
var (
	ErrNotFound       = errors.New("capture session not found")
	ErrInvalidID      = errors.New("invalid capture session id")
	ErrInvalidRequest = errors.New("invalid request")
	ErrFileTooLarge   = errors.New("file exceeds maximum upload size")
	ErrNoUser         = errors.New("no authenticated user")
)

// MapHTTPStatus maps capture session, controller, camera and pipeline
// errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, capture.ErrUnknownMode),
		errors.Is(err, capture.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, capture.ErrWrongMode),
		errors.Is(err, capture.ErrNoMode),
		errors.Is(err, capture.ErrSubmitted),
		errors.Is(err, capture.ErrSubmitting),
		errors.Is(err, camera.ErrNotAcquired),
		errors.Is(err, camera.ErrAcquiring),
		errors.Is(err, camera.ErrReleased),
		errors.Is(err, camera.ErrCaptureUnavailable),
		errors.Is(err, submission.ErrAlreadySubmitting):
		return http.StatusConflict
	case errors.Is(err, submission.ErrNotValidated),
		errors.Is(err, validation.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, submission.ErrClosed),
		errors.Is(err, capture.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}
