// Package convstore holds the in-memory conversation summaries for the
// currently selected pages. The sync orchestrator owns all writes; the UI
// reads projections.
package convstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/pageinbox/inboxd/internal/store"
)

// Filter selects conversations by read state.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

// Store is the mutable set of conversation summaries.
type Store struct {
	mu    sync.RWMutex
	convs []store.Conversation
	index map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Replace swaps in a full set of conversations, e.g. after a storage read.
func (s *Store) Replace(convs []store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = append(s.convs[:0:0], convs...)
	s.index = make(map[string]int, len(convs))
	for i, c := range s.convs {
		s.index[c.ID] = i
	}
}

// Get returns a copy of the conversation by id.
func (s *Store) Get(id string) (store.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return store.Conversation{}, false
	}
	return s.convs[i], true
}

// Upsert inserts the conversation or overwrites the existing one.
func (s *Store) Upsert(c store.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[c.ID]; ok {
		s.convs[i] = c
		return
	}
	s.index[c.ID] = len(s.convs)
	s.convs = append(s.convs, c)
}

// ApplyPatch shallow-merges the patch into the conversation. Reports whether
// the conversation exists. Applying the same patch twice is a no-op.
func (s *Store) ApplyPatch(id string, p store.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	p.Apply(&s.convs[i])
	return true
}

// Snapshot returns a copy of all conversations in insertion order.
func (s *Store) Snapshot() []store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Conversation(nil), s.convs...)
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// Project returns conversations matching the filter and query, sorted by
// UpdatedAt descending. Ties keep their relative input order (stable sort).
// The query matches case-insensitively against participant name and snippet.
func (s *Store) Project(filter Filter, query string) []store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	var out []store.Conversation
	for _, c := range s.convs {
		switch filter {
		case FilterUnread:
			if c.UnreadCount == 0 {
				continue
			}
		case FilterRead:
			if c.UnreadCount > 0 {
				continue
			}
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(c.ParticipantName), query) &&
			!strings.Contains(strings.ToLower(c.Snippet), query) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}
