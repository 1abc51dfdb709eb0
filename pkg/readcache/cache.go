// Package readcache is the client-side read-state cache. It only exists for
// optimistic UI: the server's read flags always win, except for a mark the
// client made within the acknowledgement window that the server has not
// reflected yet.
package readcache

import (
	"sync"
	"time"
)

// DefaultAckWindow is how long an unacknowledged local mark survives a
// conflicting server read.
const DefaultAckWindow = 30 * time.Second

type entry struct {
	read     bool
	pending  bool
	markedAt time.Time
}

// Cache holds read flags keyed by notification id.
type Cache struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]entry
}

// New creates a Cache. A non-positive window uses DefaultAckWindow.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultAckWindow
	}
	return &Cache{window: window, now: time.Now, entries: make(map[string]entry)}
}

// MarkRead records an optimistic read that the server has not confirmed.
func (c *Cache) MarkRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry{read: true, pending: true, markedAt: c.now()}
}

// MarkAllRead optimistically marks every id.
func (c *Cache) MarkAllRead(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, id := range ids {
		c.entries[id] = entry{read: true, pending: true, markedAt: now}
	}
}

// Ack records that the server accepted the mark for id.
func (c *Cache) Ack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.pending = false
		c.entries[id] = e
	}
}

// IsRead reports the cached flag.
func (c *Cache) IsRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id].read
}

// Pending returns ids whose marks still await acknowledgement, for resubmission.
func (c *Cache) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, e := range c.entries {
		if e.pending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reconcile merges a fresh server view into the cache and returns the flags to
// display. A server read always confirms the local mark. A server unread beats
// the local mark unless that mark is pending and younger than the window.
func (c *Cache) Reconcile(server map[string]bool) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	view := make(map[string]bool, len(server))
	for id, serverRead := range server {
		local, ok := c.entries[id]
		switch {
		case serverRead:
			c.entries[id] = entry{read: true}
		case ok && local.pending && now.Sub(local.markedAt) < c.window:
			// server has not caught up with our mark yet
		default:
			c.entries[id] = entry{read: false}
		}
		view[id] = c.entries[id].read
	}
	return view
}
