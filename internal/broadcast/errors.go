package broadcast

import "errors"

var (
	// ErrHubClosed indicates the hub loop has stopped.
	ErrHubClosed = errors.New("broadcast hub closed")
	// ErrStreamUnsupported indicates the response writer cannot flush.
	ErrStreamUnsupported = errors.New("streaming unsupported")
)
