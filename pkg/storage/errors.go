package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

var (
	// ErrNotFound indicates the requested blob does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrEmptyKey indicates an empty storage key was provided.
	ErrEmptyKey = errors.New("storage key must not be empty")
	// ErrInvalidKey indicates the storage key contains a path traversal segment.
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
	// ErrDisabled indicates no storage endpoint is configured.
	ErrDisabled = errors.New("blob storage not configured")
	// ErrUnavailable indicates the storage service could not be reached or failed server side.
	ErrUnavailable = errors.New("blob storage unavailable")
)

// MapHTTPStatus maps storage errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrDisabled), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// classify wraps err with ErrUnavailable when the service answered 5xx, the
// request timed out, or no response arrived at all.
func classify(op, key string, err error) error {
	var respErr *azcore.ResponseError
	switch {
	case errors.As(err, &respErr):
		if respErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
		}
		return fmt.Errorf("%s %s: %w", op, key, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
}
