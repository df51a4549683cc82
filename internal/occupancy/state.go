// Package occupancy turns resolved face observations into the live occupancy
// count and fans it out to storage and subscribers.
package occupancy

import (
	"sync"
	"time"
)

// LiveCount is the current occupancy. Version increases with every update.
type LiveCount struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	Version   uint64    `json:"-"`
}

// State holds the latest LiveCount. Only the Aggregator writes it.
type State struct {
	mu    sync.RWMutex
	cur   LiveCount
	valid bool
}

// NewState creates an unset State.
func NewState() *State {
	return &State{}
}

// Get returns a copy of the current value and whether it was ever set.
func (s *State) Get() (LiveCount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur, s.valid
}

func (s *State) set(count int, at time.Time) LiveCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = LiveCount{Count: count, Timestamp: at, Version: s.cur.Version + 1}
	s.valid = true
	return s.cur
}

// seed sets the value only when it was never set.
func (s *State) seed(count int, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid {
		return false
	}
	s.cur = LiveCount{Count: count, Timestamp: at, Version: s.cur.Version + 1}
	s.valid = true
	return true
}
