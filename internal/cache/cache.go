// Package cache provides the bounded caches that sit in front of expensive
// upstream lookups: a capacity-bounded FIFO cache with per-entry TTLs, and a
// single-value snapshot cache that refreshes wholesale.
//
// Eviction is strictly FIFO: at capacity the oldest-inserted entry goes,
// regardless of how recently it was read. Reads never refresh an entry's TTL
// or its insertion slot. This is deliberately not an LRU; downstream behavior
// depends on the simpler policy.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a capacity-bounded FIFO cache with per-entry TTLs. Expired entries
// are dropped lazily on read rather than by per-entry timers. All methods are
// safe for concurrent use; eviction plus insert happens under one lock.
//
// Concurrent misses on the same key each fetch independently: there is no
// request coalescing.
type Cache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	entries map[K]entry[V]
	order   []K // insertion order, oldest first
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most capacity entries, each living for ttl
// from its insertion.
func New[K comparable, V any](capacity int, ttl time.Duration, clock clockwork.Clock) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		entries:  make(map[K]entry[V], capacity),
	}
}

// GetOrFetch returns the cached value for key, or calls fetch on a miss and
// caches the result. A fetch failure propagates and leaves the cache
// unmodified. A hit does not reset the entry's TTL or insertion position.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.put(key, v)
	return v, nil
}

// Len returns the number of live entries, counting expired-but-unswept ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		// Lazy expiry: a stale entry reads as a miss and frees its slot.
		c.removeLocked(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		// A concurrent miss already filled this key; replace the value but
		// keep its original insertion slot.
		c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
		return
	}

	if len(c.entries) >= c.capacity {
		c.removeLocked(c.order[0])
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
	c.order = append(c.order, key)
}

func (c *Cache[K, V]) removeLocked(key K) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
