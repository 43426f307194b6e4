package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is an in-memory Store. A single mutex guards the map; it is never held
// while the caller does anything else.
type TTL[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	maxEntries int
	entries    map[string]entry[V]
}

// NewTTL creates an empty in-memory cache.
func NewTTL[V any](ttl time.Duration, opts ...Option) *TTL[V] {
	o := buildOptions(opts)
	return &TTL[V]{
		ttl:        normalizeTTL(ttl),
		now:        o.now,
		maxEntries: o.maxEntries,
		entries:    make(map[string]entry[V]),
	}
}

// TTL returns the configured time-to-live.
func (c *TTL[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key unless it is missing or expired.
// Expired entries are removed on the way out.
func (c *TTL[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if expired(e.storedAt, c.now(), c.ttl) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *TTL[V]) Put(_ context.Context, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.sweepLocked()
		for len(c.entries) > c.maxEntries && c.evictOldestLocked(key) {
		}
	}
}

// Erase removes key.
func (c *TTL[V]) Erase(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *TTL[V]) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len counts stored entries, including expired ones not yet swept.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep drops every expired entry.
func (c *TTL[V]) Sweep(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *TTL[V]) sweepLocked() int {
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if expired(e.storedAt, now, c.ttl) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// evictOldestLocked drops the oldest entry other than keep.
func (c *TTL[V]) evictOldestLocked(keep string) bool {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if k == keep {
			continue
		}
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if !found {
		return false
	}
	delete(c.entries, oldestKey)
	return true
}

var (
	_ Store[int] = (*TTL[int])(nil)
	_ Sweeper    = (*TTL[int])(nil)
)
