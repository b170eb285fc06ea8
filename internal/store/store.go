// Package store holds the last-fetched event list for one viewer and derives
// filtered views from it.
package store

import (
	"strings"
	"sync"
	"time"

	"eventboard/internal/model"
)

// Store is a single mutable snapshot of events, kept in backend order.
type Store struct {
	mu     sync.RWMutex
	events []model.Event
	loaded bool
	usedAt time.Time
}

func New() *Store {
	return &Store{usedAt: time.Now()}
}

// SetEvents replaces the snapshot wholesale.
func (s *Store) SetEvents(events []model.Event) {
	snapshot := make([]model.Event, len(events))
	copy(snapshot, events)

	s.mu.Lock()
	s.events = snapshot
	s.loaded = true
	s.usedAt = time.Now()
	s.mu.Unlock()
}

// Events returns the current snapshot. Callers must not modify it.
func (s *Store) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usedAt = time.Now()
	return s.events
}

// Filter returns the events whose name contains term, ignoring case and
// surrounding whitespace. A blank term returns the full snapshot. Filtering
// works on the snapshot only and never triggers a fetch.
func (s *Store) Filter(term string) []model.Event {
	all := s.Events()

	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return all
	}

	out := make([]model.Event, 0, len(all))
	for _, ev := range all {
		if strings.Contains(strings.ToLower(ev.Name), needle) {
			out = append(out, ev)
		}
	}
	return out
}

// Loaded reports whether SetEvents has been called at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// IdleSince is the last time the snapshot was replaced or read.
func (s *Store) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedAt
}
