package identities

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/headcount/internal/fingerprint"
	"github.com/JaimeStill/headcount/pkg/query"
	"github.com/JaimeStill/headcount/pkg/repository"
)

// Store persists identities. Descriptors are never persisted. Save adds each
// sighting to the stored occurrence count, so saves commute and a re-minted
// identity never resets its row.
type Store interface {
	Save(ctx context.Context, sightings []Sighting) error
	Find(ctx context.Context, fp fingerprint.Fingerprint) (*Identity, error)
}

var projection = query.
	NewProjectionMap("public", "identities", "i").
	Project("fingerprint", "Fingerprint").
	Project("first_seen", "FirstSeen").
	Project("last_seen", "LastSeen").
	Project("occurrence_count", "OccurrenceCount")

const upsertIdentity = `
INSERT INTO identities (fingerprint, first_seen, last_seen, occurrence_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (fingerprint) DO UPDATE SET
	first_seen = LEAST(identities.first_seen, EXCLUDED.first_seen),
	last_seen = GREATEST(identities.last_seen, EXCLUDED.last_seen),
	occurrence_count = identities.occurrence_count + EXCLUDED.occurrence_count`

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a PostgreSQL identity store.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &repo{
		db:     db,
		logger: logger.With("system", "identities-store"),
	}
}

func (r *repo) Save(ctx context.Context, sightings []Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	argSets := make([][]any, len(sightings))
	for i, s := range sightings {
		if s.Count < 1 {
			return fmt.Errorf("%w: sighting count %d", ErrInvalidSighting, s.Count)
		}
		argSets[i] = []any{s.Fingerprint.String(), s.FirstSeen, s.SeenAt, s.Count}
	}

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecEach(ctx, tx, upsertIdentity, argSets)
	})
	if err != nil {
		return fmt.Errorf("save identities: %w", err)
	}

	r.logger.Debug("identities saved", "count", len(sightings))
	return nil
}

func (r *repo) Find(ctx context.Context, fp fingerprint.Fingerprint) (*Identity, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Fingerprint", fp.String())

	id, err := repository.QueryOne(ctx, r.db, q, args, scanIdentity)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, err)
	}
	return &id, nil
}

func scanIdentity(s repository.Scanner) (Identity, error) {
	var (
		id Identity
		fp string
	)
	err := s.Scan(&fp, &id.FirstSeen, &id.LastSeen, &id.OccurrenceCount)
	id.Fingerprint = fingerprint.Fingerprint(fp)
	return id, err
}
