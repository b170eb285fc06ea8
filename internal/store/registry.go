package store

import (
	"sync"
	"time"
)

// Key identifies one viewer's snapshot of one list ("events", "my-events").
type Key struct {
	Visitor string
	List    string
}

// Registry keeps one Store per Key so every browser searches its own
// snapshot.
type Registry struct {
	mu     sync.Mutex
	stores map[Key]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[Key]*Store)}
}

// Get returns the store for key, creating an empty one on first use.
func (r *Registry) Get(key Key) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[key]
	if !ok {
		s = New()
		r.stores[key] = s
	}
	return s
}

// Drop forgets every list of a visitor, e.g. after logout.
func (r *Registry) Drop(visitor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.stores {
		if k.Visitor == visitor {
			delete(r.stores, k)
		}
	}
}

// Evict removes stores unused for longer than idle and returns how many
// were removed.
func (r *Registry) Evict(now time.Time, idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, s := range r.stores {
		if now.Sub(s.IdleSince()) > idle {
			delete(r.stores, k)
			removed++
		}
	}
	return removed
}

// Len is the number of live snapshots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
