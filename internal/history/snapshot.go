// Package history records occupancy snapshots and serves time-range queries.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one persisted occupancy observation.
type Snapshot struct {
	ID              uuid.UUID `json:"id"`
	Count           int       `json:"count"`
	Timestamp       time.Time `json:"timestamp"`
	ZoneID          string    `json:"zone_id"`
	AnonymizedFaces []string  `json:"anonymized_faces"`
}

// Range selects snapshots with Timestamp >= Since, newest first, at most Limit.
// A nil ZoneID matches every zone.
type Range struct {
	Since  time.Time
	Limit  int
	ZoneID *string
}

// Limits bounds history queries.
type Limits struct {
	Window       time.Duration
	DefaultLimit int
	MaxLimit     int
}
