package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Snapshot caches a single value that is refreshed wholesale when stale,
// e.g. the NWS station directory. Unlike Cache there are no keys and no
// eviction; the whole value is replaced on refresh.
type Snapshot[T any] struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu        sync.Mutex
	value     T
	fetched   bool
	expiresAt time.Time
}

// NewSnapshot creates a snapshot cache with the given refresh interval.
func NewSnapshot[T any](ttl time.Duration, clock clockwork.Clock) *Snapshot[T] {
	return &Snapshot[T]{ttl: ttl, clock: clock}
}

// Get returns the cached value, refreshing it via fetch when missing or
// stale. A refresh failure propagates; a previously cached value is not
// served past its deadline.
func (s *Snapshot[T]) Get(ctx context.Context, fetch func(ctx context.Context) (T, error)) (T, error) {
	s.mu.Lock()
	if s.fetched && s.clock.Now().Before(s.expiresAt) {
		v := s.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.mu.Lock()
	s.value = v
	s.fetched = true
	s.expiresAt = s.clock.Now().Add(s.ttl)
	s.mu.Unlock()
	return v, nil
}
