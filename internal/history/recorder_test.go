package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/headcount/internal/history"
	"github.com/JaimeStill/headcount/internal/testdb"
)

func TestRecorderIntegration(t *testing.T) {
	db := testdb.Start(t)
	rec := history.NewRecorder(db, discard())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	seed := []history.Snapshot{
		{ID: uuid.New(), Count: 1, Timestamp: now.Add(-25 * time.Hour), ZoneID: "default"},
		{ID: uuid.New(), Count: 2, Timestamp: now.Add(-2 * time.Hour), ZoneID: "default", AnonymizedFaces: []string{"a"}},
		{ID: uuid.New(), Count: 3, Timestamp: now.Add(-time.Hour), ZoneID: "lobby", AnonymizedFaces: []string{"b", "c", "d"}},
		{ID: uuid.New(), Count: 0, Timestamp: now, ZoneID: "default"},
	}
	for _, s := range seed {
		if err := rec.Append(ctx, s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := rec.QueryRange(ctx, history.Range{Since: now.Add(-24 * time.Hour), Limit: 100})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Error("results should be newest first")
		}
	}
	if got[1].ZoneID != "lobby" || len(got[1].AnonymizedFaces) != 3 {
		t.Errorf("lobby snapshot: got %+v", got[1])
	}

	limited, err := rec.QueryRange(ctx, history.Range{Since: now.Add(-24 * time.Hour), Limit: 1})
	if err != nil {
		t.Fatalf("QueryRange limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Count != 0 {
		t.Errorf("limit 1: got %+v", limited)
	}

	lobby := "lobby"
	zoned, err := rec.QueryRange(ctx, history.Range{Since: now.Add(-24 * time.Hour), Limit: 100, ZoneID: &lobby})
	if err != nil {
		t.Fatalf("QueryRange zone: %v", err)
	}
	if len(zoned) != 1 || zoned[0].Count != 3 {
		t.Errorf("zone filter: got %+v", zoned)
	}
}
