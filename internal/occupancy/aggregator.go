package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/headcount/internal/detection"
	"github.com/JaimeStill/headcount/internal/fingerprint"
	"github.com/JaimeStill/headcount/internal/history"
	"github.com/JaimeStill/headcount/internal/identities"
)

// MaxObservations bounds the faces accepted in one frame.
const MaxObservations = 1024

// Publisher receives every committed LiveCount.
type Publisher interface {
	Publish(LiveCount)
}

// Face is one resolved observation of a frame.
type Face struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Box         detection.Box           `json:"bbox"`
	Confidence  *float64                `json:"confidence,omitempty"`
}

// Result is the outcome of one ingested frame.
type Result struct {
	Snapshot history.Snapshot `json:"snapshot"`
	Faces    []Face           `json:"faces"`
}

// Deps wires an Aggregator. Publisher may be nil.
type Deps struct {
	Registry       *identities.Registry
	Extractor      *fingerprint.Extractor
	State          *State
	Live           LiveStore
	Identities     identities.Store
	History        history.Recorder
	Publisher      Publisher
	Workers        int
	StorageTimeout time.Duration
	DefaultZone    string
	Logger         *slog.Logger
}

// Aggregator commits frames and manual counts to the live state, then persists
// and publishes them.
type Aggregator struct {
	registry   *identities.Registry
	extractor  *fingerprint.Extractor
	state      *State
	live       LiveStore
	identities identities.Store
	history    history.Recorder
	publisher  Publisher
	workers    int
	timeout    time.Duration
	zone       string
	logger     *slog.Logger
	now        func() time.Time

	commitMu sync.Mutex

	liveMu      sync.Mutex
	liveVersion uint64
}

// NewAggregator creates an Aggregator from d.
func NewAggregator(d Deps) *Aggregator {
	workers := max(d.Workers, 1)
	timeout := d.StorageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	zone := d.DefaultZone
	if zone == "" {
		zone = "default"
	}

	return &Aggregator{
		registry:   d.Registry,
		extractor:  d.Extractor,
		state:      d.State,
		live:       d.Live,
		identities: d.Identities,
		history:    d.History,
		publisher:  d.Publisher,
		workers:    workers,
		timeout:    timeout,
		zone:       zone,
		logger:     d.Logger.With("system", "occupancy"),
		now:        time.Now,
	}
}

// State returns the live count cell.
func (a *Aggregator) State() *State {
	return a.state
}

// Ingest resolves the observations of one frame against the identity registry
// and commits the number of distinct identities as the current count. The
// request context only scopes the call; persistence runs to completion.
func (a *Aggregator) Ingest(ctx context.Context, observations []detection.Observation, zone string) (*Result, error) {
	if len(observations) > MaxObservations {
		return nil, fmt.Errorf("%w: %d", ErrTooManyObservations, len(observations))
	}
	if zone == "" {
		zone = a.zone
	}

	prepared := a.prepare(observations)

	valid := make([]identities.Prepared, 0, len(prepared))
	index := make([]int, 0, len(prepared))
	for i, p := range prepared {
		if p != nil {
			valid = append(valid, *p)
			index = append(index, i)
		}
	}

	a.commitMu.Lock()
	now := a.now().UTC()
	resolved := a.registry.ResolveFrame(now, valid)

	faces := make([]Face, 0, len(resolved))
	seen := make(map[fingerprint.Fingerprint]*identities.Sighting, len(resolved))
	order := make([]string, 0, len(resolved))
	for i, r := range resolved {
		if r.Err != nil {
			continue
		}
		fp := r.Identity.Fingerprint
		obs := observations[index[i]]
		faces = append(faces, Face{Fingerprint: fp, Box: obs.Box, Confidence: obs.Confidence})

		if s, ok := seen[fp]; ok {
			s.Count++
			continue
		}
		order = append(order, fp.String())
		seen[fp] = &identities.Sighting{
			Fingerprint: fp,
			FirstSeen:   r.Identity.FirstSeen,
			SeenAt:      now,
			Count:       1,
		}
	}
	live := a.state.set(len(order), now)
	a.commitMu.Unlock()

	snap := history.Snapshot{
		ID:              uuid.New(),
		Count:           live.Count,
		Timestamp:       now,
		ZoneID:          zone,
		AnonymizedFaces: order,
	}

	sightings := make([]identities.Sighting, 0, len(seen))
	for _, fp := range order {
		sightings = append(sightings, *seen[fingerprint.Fingerprint(fp)])
	}

	a.persist(ctx, snap, sightings, true)
	a.writeLive(ctx, live)
	a.publish(live)

	a.logger.Debug("frame ingested",
		"zone", zone,
		"observations", len(observations),
		"count", live.Count,
		"working_set", a.registry.Len(),
	)

	return &Result{Snapshot: snap, Faces: faces}, nil
}

// SetManualCount commits count as the current occupancy with synthetic
// fingerprints. Identities are not persisted for manual counts.
func (a *Aggregator) SetManualCount(ctx context.Context, count int, zone string) (history.Snapshot, error) {
	if count < 0 {
		return history.Snapshot{}, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if zone == "" {
		zone = a.zone
	}

	a.commitMu.Lock()
	now := a.now().UTC()
	faces := make([]string, count)
	for i := range faces {
		faces[i] = a.extractor.Placeholder(zone, now, i).String()
	}
	live := a.state.set(count, now)
	a.commitMu.Unlock()

	snap := history.Snapshot{
		ID:              uuid.New(),
		Count:           count,
		Timestamp:       now,
		ZoneID:          zone,
		AnonymizedFaces: faces,
	}

	a.persist(ctx, snap, nil, false)
	a.writeLive(ctx, live)
	a.publish(live)

	a.logger.Info("manual count set", "zone", zone, "count", count)
	return snap, nil
}

// Current returns the live count, falling back to the live store before the
// first commit.
func (a *Aggregator) Current(ctx context.Context) (LiveCount, error) {
	if v, ok := a.state.Get(); ok {
		return v, nil
	}

	sctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	n, err := a.live.GetCurrentCount(sctx)
	if err != nil {
		return LiveCount{}, fmt.Errorf("%w: %v", ErrCountUnavailable, err)
	}
	return LiveCount{Count: n, Timestamp: a.now().UTC()}, nil
}

// Hydrate seeds the state from the live store so a restart keeps the last
// committed count. A failure leaves the state unset.
func (a *Aggregator) Hydrate(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	n, err := a.live.GetCurrentCount(sctx)
	if err != nil {
		a.logger.Warn("live count hydration failed", "error", err)
		return fmt.Errorf("hydrate live count: %w", err)
	}

	a.commitMu.Lock()
	seeded := a.state.seed(n, a.now().UTC())
	a.commitMu.Unlock()

	if seeded {
		a.logger.Info("live count restored", "count", n)
	}
	return nil
}

func (a *Aggregator) prepare(observations []detection.Observation) []*identities.Prepared {
	out := make([]*identities.Prepared, len(observations))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, obs := range observations {
		g.Go(func() error {
			p, err := identities.Prepare(obs.Descriptor)
			if err != nil {
				a.logger.Warn("observation dropped", "index", i, "error", err)
				return nil
			}
			out[i] = &p
			return nil
		})
	}
	g.Wait()

	return out
}

func (a *Aggregator) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
}

// persist writes identities before the snapshot so every fingerprint in a
// stored snapshot has an identity row.
func (a *Aggregator) persist(ctx context.Context, snap history.Snapshot, sightings []identities.Sighting, withIdentities bool) {
	if withIdentities && len(sightings) > 0 {
		sctx, cancel := a.storageContext(ctx)
		err := a.identities.Save(sctx, sightings)
		cancel()
		if err != nil {
			a.logger.Error("identity persistence failed, snapshot dropped",
				"snapshot", snap.ID, "identities", len(sightings), "error", err)
			return
		}
	}

	sctx, cancel := a.storageContext(ctx)
	defer cancel()
	if err := a.history.Append(sctx, snap); err != nil {
		a.logger.Error("snapshot persistence failed", "snapshot", snap.ID, "error", err)
	}
}

// writeLive skips values older than the last one written.
func (a *Aggregator) writeLive(ctx context.Context, live LiveCount) {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()

	if live.Version <= a.liveVersion {
		return
	}

	sctx, cancel := a.storageContext(ctx)
	defer cancel()
	if err := a.live.SetCurrentCount(sctx, live.Count); err != nil {
		a.logger.Error("live count write failed", "count", live.Count, "error", err)
		return
	}
	a.liveVersion = live.Version
}

func (a *Aggregator) publish(live LiveCount) {
	if a.publisher != nil {
		a.publisher.Publish(live)
	}
}
