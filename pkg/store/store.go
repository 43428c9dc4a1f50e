// Package store provides a generic, thread-safe, in-memory key-value store
// used as the backing state of simulated contracts. It keeps insertion order,
// supports atomic multi-key writes and prefix listing, and carries a
// simulated clock for time-dependent behavior.
package store

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a generic, thread-safe, in-memory store for values of type T.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string // insertion order for deterministic listing
	seq   atomic.Uint64
}

// New creates an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
		order: make([]string, 0),
	}
}

// Seq returns the number of write operations applied so far. Every Set and
// every SetMany call advances it by one.
func (s *Store[T]) Seq() uint64 {
	return s.seq.Load()
}

// Set stores an item under key and returns the write sequence number. If the
// key already exists its value is overwritten but its position in the
// insertion order is preserved.
func (s *Store[T]) Set(key string, item T) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, item)
	return s.seq.Add(1)
}

// SetMany stores all entries under a single lock so readers observe either
// none or all of them. Keys are applied in sorted order so insertion order is
// deterministic for new keys.
func (s *Store[T]) SetMany(entries map[string]T) uint64 {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.put(k, entries[k])
	}
	return s.seq.Add(1)
}

func (s *Store[T]) put(key string, item T) {
	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = item
}

// Get retrieves an item by key.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok
}

// Keys returns the keys starting with prefix, in insertion order. An empty
// prefix returns every key.
func (s *Store[T]) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for _, k := range s.order {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Count returns the number of items in the store.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset clears all items and the write sequence.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
	s.seq.Store(0)
}

// Snapshot returns all items as a JSON-serializable map.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	return snapshot
}

// LoadSnapshot replaces all items from a map. Existing items are cleared.
// Keys are sorted to keep listing deterministic.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = v
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
}

// Clock provides a simulated clock for time-dependent behavior.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a new simulated clock with no offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the simulated clock forward by the given duration.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset resets the clock offset to zero.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Offset returns the current clock offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
