// Package seenset tracks message ids that were already surfaced to the user,
// so a poll returning the same message twice never re-notifies.
package seenset

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultCapacity bounds the set; oldest ids are evicted first.
const DefaultCapacity = 100

// KV is the snapshot persistence boundary. A missing key reads as "".
type KV interface {
	KVGet(key string) (string, error)
	KVSet(key, value string) error
}

// Set is a bounded insertion-ordered set of message ids.
type Set struct {
	mu    sync.Mutex
	cap   int
	order []string
	index map[string]struct{}
}

// New creates an empty set. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		cap:   capacity,
		index: make(map[string]struct{}, capacity),
	}
}

// Add inserts id and reports whether it was absent before. Inserting beyond
// capacity evicts the oldest id.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return false
	}
	s.order = append(s.order, id)
	s.index[id] = struct{}{}
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.index, oldest)
	}
	return true
}

// Contains reports whether id is present.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of tracked ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Snapshot returns the ids oldest first.
func (s *Set) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Load restores the set from the kv snapshot under key. An empty or missing
// snapshot leaves the set empty.
func (s *Set) Load(kv KV, key string) error {
	raw, err := kv.KVGet(key)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	clear(s.index)
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.index[id] = struct{}{}
	}
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.index, oldest)
	}
	return nil
}

// Save persists the current ids to the kv snapshot under key.
func (s *Set) Save(kv KV, key string) error {
	encoded, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := kv.KVSet(key, string(encoded)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
