package fingerprint

import "errors"

var (
	ErrMissingSalt       = errors.New("anonymization salt is required")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)
