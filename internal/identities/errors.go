package identities

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
	ErrNotFound          = errors.New("identity not found")
	ErrInvalidSighting   = errors.New("invalid sighting")
)

// MapHTTPStatus maps identity errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidDescriptor), errors.Is(err, ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
