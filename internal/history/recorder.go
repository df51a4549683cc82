package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/headcount/pkg/query"
	"github.com/JaimeStill/headcount/pkg/repository"
)

// Recorder appends and queries occupancy snapshots.
type Recorder interface {
	Append(ctx context.Context, snap Snapshot) error
	QueryRange(ctx context.Context, rng Range) ([]Snapshot, error)
}

const insertSnapshot = `
INSERT INTO people_counts (id, count, timestamp, zone_id, anonymized_faces)
VALUES ($1, $2, $3, $4, $5)`

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder creates a PostgreSQL-backed Recorder.
func NewRecorder(db *sql.DB, logger *slog.Logger) Recorder {
	return &repo{
		db:     db,
		logger: logger.With("system", "history"),
	}
}

func (r *repo) Append(ctx context.Context, snap Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	faces := snap.AnonymizedFaces
	if faces == nil {
		faces = []string{}
	}
	data, err := json.Marshal(faces)
	if err != nil {
		return fmt.Errorf("encode anonymized_faces: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertSnapshot, snap.ID, snap.Count, snap.Timestamp, snap.ZoneID, string(data))
	if err != nil {
		return r.mapError("append snapshot", err)
	}
	return nil
}

func (r *repo) QueryRange(ctx context.Context, rng Range) ([]Snapshot, error) {
	q, args := rng.Apply(query.NewBuilder(projection, newestFirst)).BuildLimit(rng.Limit)

	snaps, err := repository.QueryMany(ctx, r.db, q, args, scanSnapshot)
	if err != nil {
		return nil, r.mapError("query snapshots", err)
	}
	return snaps, nil
}

func (r *repo) mapError(op string, err error) error {
	if repository.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
