package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetcher returns key-derived values and counts upstream calls per key.
type countingFetcher struct {
	calls map[string]int
	err   error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: map[string]int{}}
}

func (f *countingFetcher) fetch(key string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		f.calls[key]++
		if f.err != nil {
			return "", f.err
		}
		return "value-" + key, nil
	}
}

func TestCache_HitSkipsFetch(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](10, time.Hour, fc)

	v, err := c.GetOrFetch(context.Background(), "a", f.fetch("a"))
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)

	v, err = c.GetOrFetch(context.Background(), "a", f.fetch("a"))
	require.NoError(t, err)
	assert.Equal(t, "value-a", v)
	assert.Equal(t, 1, f.calls["a"], "second lookup must be served from cache")
}

func TestCache_FIFOEvictionIgnoresReads(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](2, time.Hour, fc)

	ctx := context.Background()
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	_, _ = c.GetOrFetch(ctx, "b", f.fetch("b"))
	_, _ = c.GetOrFetch(ctx, "c", f.fetch("c")) // evicts a (oldest inserted)
	assert.Equal(t, 2, c.Len())

	// Reading b must not protect it from eviction.
	_, _ = c.GetOrFetch(ctx, "b", f.fetch("b"))
	assert.Equal(t, 1, f.calls["b"], "b is still cached")

	_, _ = c.GetOrFetch(ctx, "d", f.fetch("d")) // evicts b despite the read
	assert.Equal(t, 2, c.Len())

	_, _ = c.GetOrFetch(ctx, "c", f.fetch("c"))
	_, _ = c.GetOrFetch(ctx, "d", f.fetch("d"))
	assert.Equal(t, 1, f.calls["c"], "c survived")
	assert.Equal(t, 1, f.calls["d"], "d survived")

	_, _ = c.GetOrFetch(ctx, "b", f.fetch("b"))
	assert.Equal(t, 2, f.calls["b"], "b was evicted despite being read")
}

func TestCache_CapacityBound(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](3, time.Hour, fc)

	ctx := context.Background()
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, err := c.GetOrFetch(ctx, k, f.fetch(k))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	// The three most recently inserted keys survive.
	for _, k := range []string{"e", "f", "g"} {
		_, _ = c.GetOrFetch(ctx, k, f.fetch(k))
		assert.Equal(t, 1, f.calls[k], "key %s should still be cached", k)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](10, time.Hour, fc)

	ctx := context.Background()
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))

	fc.Advance(59 * time.Minute)
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	assert.Equal(t, 1, f.calls["a"], "entry still fresh")

	fc.Advance(2 * time.Minute)
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	assert.Equal(t, 2, f.calls["a"], "entry expired and was refetched")
}

func TestCache_HitDoesNotResetTTL(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](10, time.Hour, fc)

	ctx := context.Background()
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))

	fc.Advance(40 * time.Minute)
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a")) // hit at t+40m

	fc.Advance(30 * time.Minute) // t+70m, past the original deadline
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	assert.Equal(t, 2, f.calls["a"], "the read at t+40m must not have extended the TTL")
}

func TestCache_FetchFailureLeavesCacheUnmodified(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := newCountingFetcher()
	c := New[string, string](2, time.Hour, fc)

	ctx := context.Background()
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	_, _ = c.GetOrFetch(ctx, "b", f.fetch("b"))

	failing := newCountingFetcher()
	failing.err = errors.New("upstream down")
	_, err := c.GetOrFetch(ctx, "c", failing.fetch("c"))
	require.Error(t, err)

	assert.Equal(t, 2, c.Len())
	_, _ = c.GetOrFetch(ctx, "a", f.fetch("a"))
	_, _ = c.GetOrFetch(ctx, "b", f.fetch("b"))
	assert.Equal(t, 1, f.calls["a"], "a untouched by the failed fetch")
	assert.Equal(t, 1, f.calls["b"], "b untouched by the failed fetch")
}

func TestSnapshot_WholesaleRefresh(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewSnapshot[[]string](15*time.Minute, fc)

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"KBTV", "KMPV"}, nil
	}

	ctx := context.Background()
	v, err := s.Get(ctx, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"KBTV", "KMPV"}, v)

	_, _ = s.Get(ctx, fetch)
	assert.Equal(t, 1, calls, "fresh snapshot served from cache")

	fc.Advance(16 * time.Minute)
	_, _ = s.Get(ctx, fetch)
	assert.Equal(t, 2, calls, "stale snapshot refreshed wholesale")
}

func TestSnapshot_RefreshFailurePropagates(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewSnapshot[int](time.Minute, fc)

	_, err := s.Get(context.Background(), func(context.Context) (int, error) {
		return 0, errors.New("fetch failed")
	})
	require.Error(t, err)
}
