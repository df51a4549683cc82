package occupancy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/JaimeStill/headcount/pkg/cache"
)

// CurrentCountKey is the cache key holding the last committed count.
const CurrentCountKey = "current_count"

// LiveStore persists the current count so a restart keeps the last value.
type LiveStore interface {
	// GetCurrentCount returns 0 when no count was stored.
	GetCurrentCount(ctx context.Context) (int, error)
	SetCurrentCount(ctx context.Context, n int) error
}

type cacheStore struct {
	cache cache.System
}

// NewLiveStore creates a LiveStore on the given cache.
func NewLiveStore(c cache.System) LiveStore {
	return &cacheStore{cache: c}
}

func (s *cacheStore) GetCurrentCount(ctx context.Context) (int, error) {
	v, err := s.cache.Get(ctx, CurrentCountKey)
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", CurrentCountKey, err)
	}
	return n, nil
}

func (s *cacheStore) SetCurrentCount(ctx context.Context, n int) error {
	return s.cache.Set(ctx, CurrentCountKey, strconv.Itoa(n), 0)
}
