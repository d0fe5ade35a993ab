// Package msgcache keeps per-conversation message lists with support for
// optimistic insert, resolve and rollback during sends.
package msgcache

import (
	"sync"

	"github.com/pageinbox/inboxd/internal/store"
)

// autoscrollSlack is how close to the bottom (in pixels) the viewport must be
// for new messages to pull it down. A user reading history further up is
// never yanked.
const autoscrollSlack = 120

// ShouldAutoscroll decides whether a list that just grew should scroll to the
// bottom, given the viewport's distance from the bottom before the update.
func ShouldAutoscroll(grew bool, viewportGap int) bool {
	return grew && viewportGap >= 0 && viewportGap <= autoscrollSlack
}

type entry struct {
	msgs      []store.Message
	lastCount int
}

// Cache maps conversation ids to cached message lists.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Get returns a copy of the cached list, or ok=false if the conversation has
// never been loaded.
func (c *Cache) Get(conversationID string) ([]store.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[conversationID]
	if !ok {
		return nil, false
	}
	return append([]store.Message(nil), e.msgs...), true
}

// Set replaces the conversation's list with authoritative data and reports
// whether it grew relative to the last known count. Any stale optimistic
// entry absent from msgs is dropped by the replacement, so authoritative
// data is never shadowed.
func (c *Cache) Set(conversationID string, msgs []store.Message) (grew bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[conversationID]
	if !ok {
		e = &entry{}
		c.entries[conversationID] = e
	}
	grew = len(msgs) > e.lastCount
	e.msgs = append(e.msgs[:0:0], msgs...)
	e.lastCount = len(msgs)
	return grew
}

// LastCount returns the list length recorded by the most recent Set or
// optimistic append.
func (c *Cache) LastCount(conversationID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[conversationID]; ok {
		return e.lastCount
	}
	return 0
}

// AppendOptimistic inserts a provisional message at the tail. The caller must
// later call Resolve or Rollback with the message's temporary id.
func (c *Cache) AppendOptimistic(conversationID string, msg store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[conversationID]
	if !ok {
		e = &entry{}
		c.entries[conversationID] = e
	}
	e.msgs = append(e.msgs, msg)
	e.lastCount = len(e.msgs)
}

// Resolve renames a temporary id to the authoritative one in place, without
// reordering. Reports whether the temporary entry was found.
func (c *Cache) Resolve(conversationID, tempID, remoteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[conversationID]
	if !ok {
		return false
	}
	for i := range e.msgs {
		if e.msgs[i].ID == tempID {
			e.msgs[i].ID = remoteID
			return true
		}
	}
	return false
}

// Rollback removes a provisional entry after a failed send. Reports whether
// the temporary entry was found.
func (c *Cache) Rollback(conversationID, tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[conversationID]
	if !ok {
		return false
	}
	for i := range e.msgs {
		if e.msgs[i].ID == tempID {
			e.msgs = append(e.msgs[:i], e.msgs[i+1:]...)
			e.lastCount = len(e.msgs)
			return true
		}
	}
	return false
}

// Drop forgets a conversation entirely.
func (c *Cache) Drop(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, conversationID)
}
