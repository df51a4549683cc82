package detection

import (
	"errors"
	"net/http"
)

var (
	ErrDecode            = errors.New("frame could not be decoded")
	ErrDetect            = errors.New("face detection failed")
	ErrUnknownProvider   = errors.New("unknown detection provider")
	ErrWorkerUnavailable = errors.New("no detection worker available")
)

// MapHTTPStatus maps detection errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, ErrWorkerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrDetect):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
