package history

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/headcount/pkg/storage"
)

var (
	ErrUnavailable  = errors.New("history storage unavailable")
	ErrInvalidRange = errors.New("invalid history range")
	ErrEmptyArchive = errors.New("no snapshots in range")
)

// MapHTTPStatus maps history errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyArchive):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	if s := storage.MapHTTPStatus(err); s != http.StatusInternalServerError {
		return s
	}
	return http.StatusServiceUnavailable
}
