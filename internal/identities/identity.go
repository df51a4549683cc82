// Package identities maintains the bounded, time-windowed working set of
// anonymized identities used to deduplicate faces across frames.
package identities

import (
	"time"

	"github.com/JaimeStill/headcount/internal/fingerprint"
)

// Identity is a persisted anonymized person record.
type Identity struct {
	Fingerprint     fingerprint.Fingerprint `json:"fingerprint"`
	FirstSeen       time.Time               `json:"first_seen"`
	LastSeen        time.Time               `json:"last_seen"`
	OccurrenceCount int                     `json:"occurrence_count"`
}

// Sighting is what one frame adds to a persisted identity. Count is the
// number of observations in the frame that resolved to Fingerprint.
type Sighting struct {
	Fingerprint fingerprint.Fingerprint
	FirstSeen   time.Time
	SeenAt      time.Time
	Count       int
}

// Resolution is the outcome of resolving one prepared descriptor.
// Err is set when the descriptor was dropped; Identity is then zero.
type Resolution struct {
	Identity   Identity
	Matched    bool
	Similarity float64
	Err        error
}
