package history

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/JaimeStill/headcount/pkg/query"
	"github.com/JaimeStill/headcount/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "people_counts", "pc").
	Project("id", "ID").
	Project("count", "Count").
	Project("timestamp", "Timestamp").
	Project("zone_id", "ZoneID").
	Project("anonymized_faces", "AnonymizedFaces")

var newestFirst = query.SortField{
	Field:      "Timestamp",
	Descending: true,
}

// Apply adds the range conditions to a query builder.
func (r Range) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereAtLeast("Timestamp", r.Since).
		WhereEquals("ZoneID", r.ZoneID)
}

// RangeFromQuery reads hours, limit and zone_id query parameters, applying
// defaults from limits and capping limit at MaxLimit.
func RangeFromQuery(values url.Values, limits Limits, now time.Time) (Range, error) {
	window := limits.Window
	if h := values.Get("hours"); h != "" {
		n, err := strconv.ParseFloat(h, 64)
		if err != nil || n <= 0 {
			return Range{}, fmt.Errorf("%w: hours must be a positive number", ErrInvalidRange)
		}
		window = time.Duration(n * float64(time.Hour))
	}

	limit := limits.DefaultLimit
	if l := values.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return Range{}, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidRange)
		}
		limit = n
	}
	limit = min(limit, limits.MaxLimit)

	rng := Range{Since: now.Add(-window), Limit: limit}
	if z := values.Get("zone_id"); z != "" {
		rng.ZoneID = &z
	}
	return rng, nil
}

func scanSnapshot(s repository.Scanner) (Snapshot, error) {
	var (
		snap  Snapshot
		faces []byte
	)
	if err := s.Scan(&snap.ID, &snap.Count, &snap.Timestamp, &snap.ZoneID, &faces); err != nil {
		return snap, err
	}
	snap.Timestamp = snap.Timestamp.UTC()
	if err := json.Unmarshal(faces, &snap.AnonymizedFaces); err != nil {
		return snap, fmt.Errorf("decode anonymized_faces: %w", err)
	}
	if snap.AnonymizedFaces == nil {
		snap.AnonymizedFaces = []string{}
	}
	return snap, nil
}
