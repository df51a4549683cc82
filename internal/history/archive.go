package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JaimeStill/headcount/pkg/storage"
)

const archiveContentType = "application/x-ndjson"

// Archive describes an uploaded NDJSON export.
type Archive struct {
	Key       string    `json:"key"`
	Snapshots int       `json:"snapshots"`
	Since     time.Time `json:"since"`
	CreatedAt time.Time `json:"created_at"`
}

// Archiver exports snapshot ranges to blob storage. A nil store disables it.
type Archiver struct {
	recorder Recorder
	store    storage.System
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiver creates an Archiver. store may be nil when storage is not configured.
func NewArchiver(recorder Recorder, store storage.System, logger *slog.Logger) *Archiver {
	return &Archiver{
		recorder: recorder,
		store:    store,
		logger:   logger.With("system", "history-archive"),
		now:      time.Now,
	}
}

// ArchiveKey returns the blob key for an export of zone created at t.
func ArchiveKey(zone string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("snapshots/%s/%04d/%02d/%02d/%s.ndjson",
		zone, t.Year(), t.Month(), t.Day(), t.Format("20060102T150405.000000000Z"))
}

// Archive writes every snapshot in rng as one JSON object per line and uploads it.
func (a *Archiver) Archive(ctx context.Context, rng Range) (*Archive, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}

	snaps, err := a.recorder.QueryRange(ctx, rng)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrEmptyArchive
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, s := range snaps {
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("encode snapshot %s: %w", s.ID, err)
		}
	}

	zone := "all"
	if rng.ZoneID != nil {
		zone = *rng.ZoneID
	}

	created := a.now().UTC()
	key := ArchiveKey(zone, created)
	if err := storage.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	if err := a.store.Upload(ctx, key, &buf, archiveContentType); err != nil {
		return nil, err
	}

	a.logger.Info("history archived", "key", key, "snapshots", len(snaps))

	return &Archive{
		Key:       key,
		Snapshots: len(snaps),
		Since:     rng.Since,
		CreatedAt: created,
	}, nil
}

// Open returns the archive stored at key. The caller must close the reader.
func (a *Archiver) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.Download(ctx, key)
}
