package occupancy

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/headcount/internal/detection"
)

var (
	ErrInvalidCount        = errors.New("count must be a non-negative integer")
	ErrCountUnavailable    = errors.New("current count unavailable")
	ErrTooManyObservations = errors.New("too many observations in one frame")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrFrameTooLarge       = errors.New("frame exceeds maximum size")
)

// MapHTTPStatus maps occupancy and detection errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCount),
		errors.Is(err, ErrTooManyObservations),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrFrameTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrCountUnavailable):
		return http.StatusServiceUnavailable
	default:
		return detection.MapHTTPStatus(err)
	}
}
