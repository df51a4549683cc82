package identities

import (
	"cmp"
	"container/list"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JaimeStill/headcount/internal/fingerprint"
)

// RegistryConfig bounds the working set.
type RegistryConfig struct {
	Threshold float64
	Capacity  int
	Window    time.Duration
}

type entry struct {
	identity Identity
	ref      []float64
	refNorm  float64
	merged   int
	elem     *list.Element
}

// Registry matches descriptors against recently seen identities. Entries older
// than Window are expired and the least recently seen entry is evicted once
// Capacity is exceeded.
type Registry struct {
	cfg       RegistryConfig
	extractor *fingerprint.Extractor
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[fingerprint.Fingerprint]*entry
	recency *list.List // front is most recently seen
	dim     int
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, extractor *fingerprint.Extractor, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		extractor: extractor,
		logger:    logger.With("system", "identities"),
		entries:   make(map[fingerprint.Fingerprint]*entry),
		recency:   list.New(),
	}
}

// Len returns the number of identities in the working set.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Resolve resolves a single descriptor at now.
func (r *Registry) Resolve(now time.Time, descriptor []float64) (Resolution, error) {
	p, err := Prepare(descriptor)
	if err != nil {
		return Resolution{}, err
	}
	res := r.ResolveFrame(now, []Prepared{p})[0]
	return res, res.Err
}

type candidate struct {
	e     *entry
	score float64
}

// ResolveFrame resolves every descriptor of one frame, in order, under a single
// lock. The result is aligned with descriptors. Within a frame an observation
// joins an identity already claimed by an earlier observation only when it is
// similar enough to every earlier claimant.
func (r *Registry) ResolveFrame(now time.Time, descriptors []Prepared) []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Resolution, len(descriptors))
	claims := make(map[fingerprint.Fingerprint][]Prepared)

	for i, p := range descriptors {
		r.expire(now)

		if r.dim != 0 && p.Dim() != r.dim {
			out[i].Err = fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, p.Dim(), r.dim)
			r.logger.Warn("descriptor dropped", "error", out[i].Err)
			continue
		}

		chosen, score := r.choose(p, claims)
		if chosen == nil {
			var err error
			chosen, err = r.mint(now, p)
			if err != nil {
				out[i].Err = err
				r.logger.Warn("descriptor dropped", "error", err)
				continue
			}
			out[i] = Resolution{Identity: chosen.identity, Matched: chosen.identity.OccurrenceCount > 1}
		} else {
			r.merge(chosen, now, p)
			out[i] = Resolution{Identity: chosen.identity, Matched: true, Similarity: score}
		}

		fp := chosen.identity.Fingerprint
		claims[fp] = append(claims[fp], p)

		r.evict()
	}

	return out
}

func (r *Registry) choose(p Prepared, claims map[fingerprint.Fingerprint][]Prepared) (*entry, float64) {
	var eligible []candidate
	for _, e := range r.entries {
		if e.refNorm == 0 {
			continue
		}
		if s := similarity(p, e.ref, e.refNorm); s >= r.cfg.Threshold {
			eligible = append(eligible, candidate{e: e, score: s})
		}
	}

	slices.SortFunc(eligible, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return b.e.identity.LastSeen.Compare(a.e.identity.LastSeen)
	})

	for _, c := range eligible {
		if r.consistent(p, claims[c.e.identity.Fingerprint]) {
			return c.e, c.score
		}
	}
	return nil, 0
}

func (r *Registry) consistent(p Prepared, claimants []Prepared) bool {
	for _, q := range claimants {
		if similarity(p, q.vec, q.norm) < r.cfg.Threshold {
			return false
		}
	}
	return true
}

func (r *Registry) mint(now time.Time, p Prepared) (*entry, error) {
	fp, err := r.extractor.Fingerprint(p.vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	// A bit-identical descriptor can reappear after its identity drifted away.
	if e, ok := r.entries[fp]; ok {
		r.merge(e, now, p)
		return e, nil
	}

	e := &entry{
		identity: Identity{
			Fingerprint:     fp,
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: 1,
		},
		ref:     append([]float64(nil), p.vec...),
		refNorm: p.norm,
		merged:  1,
	}
	e.elem = r.recency.PushFront(e)
	r.entries[fp] = e
	r.dim = p.Dim()
	return e, nil
}

func (r *Registry) merge(e *entry, now time.Time, p Prepared) {
	e.identity.OccurrenceCount++
	if now.After(e.identity.LastSeen) {
		e.identity.LastSeen = now
	}

	e.merged++
	n := float64(e.merged)
	for i := range e.ref {
		e.ref[i] += (p.vec[i] - e.ref[i]) / n
	}
	e.refNorm = norm(e.ref)

	r.recency.MoveToFront(e.elem)
}

func (r *Registry) expire(now time.Time) {
	for back := r.recency.Back(); back != nil; back = r.recency.Back() {
		e := back.Value.(*entry)
		if now.Sub(e.identity.LastSeen) <= r.cfg.Window {
			break
		}
		r.remove(e)
	}
}

func (r *Registry) evict() {
	for r.cfg.Capacity > 0 && len(r.entries) > r.cfg.Capacity {
		r.remove(r.recency.Back().Value.(*entry))
	}
}

func (r *Registry) remove(e *entry) {
	r.recency.Remove(e.elem)
	delete(r.entries, e.identity.Fingerprint)
	if len(r.entries) == 0 {
		r.dim = 0
	}
}
