// Package cache provides a process-wide TTL cache with explicit
// invalidation. Used for backend availability probes and other
// expensive, slowly-changing lookups; never for session state.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a small keyed cache where every entry expires after the
// configured TTL. Reload happens at the caller via GetOrFill; stale
// state can always be dropped explicitly with Invalidate.
type TTLCache struct {
	ttl     time.Duration
	entries map[string]entry
	mu      sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value if present and unexpired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key with a fresh TTL.
func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrFill returns the cached value, or computes, stores, and returns
// it. Only one fill runs per expired key at a time.
func (c *TTLCache) GetOrFill(key string, fill func() any) any {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !c.now().After(e.expiresAt) {
		c.mu.Unlock()
		return e.value
	}
	c.mu.Unlock()

	value := fill()
	c.Set(key, value)
	return value
}

// Invalidate drops one key.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *TTLCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
