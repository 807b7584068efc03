package nws

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/cache"
	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

// Cache TTLs, fixed by how often the upstream data actually changes.
const (
	zoneTTL      = 24 * time.Hour // zone boundaries are effectively static
	gridTTL      = time.Hour      // grid cell assignments shift with NWS deploys
	directoryTTL = 15 * time.Minute
)

// CachedZones decorates a Client with a bounded FIFO+TTL cache of zone
// boundaries. It implements domain.ZoneFetcher.
type CachedZones struct {
	client  *Client
	cache   *cache.Cache[string, domain.ZoneBoundary]
	metrics *observability.Metrics
}

// NewCachedZones creates the zone-boundary cache decorator.
func NewCachedZones(client *Client, capacity int, clock clockwork.Clock, metrics *observability.Metrics) *CachedZones {
	return &CachedZones{
		client:  client,
		cache:   cache.New[string, domain.ZoneBoundary](capacity, zoneTTL, clock),
		metrics: metrics,
	}
}

func (z *CachedZones) Zone(ctx context.Context, id string) (domain.ZoneBoundary, error) {
	missed := false
	zb, err := z.cache.GetOrFetch(ctx, id, func(ctx context.Context) (domain.ZoneBoundary, error) {
		missed = true
		return z.client.Zone(ctx, id)
	})
	if err != nil {
		return domain.ZoneBoundary{}, err
	}
	z.countLookup("zone", missed)
	return zb, nil
}

func (z *CachedZones) countLookup(name string, missed bool) {
	result := "hit"
	if missed {
		result = "miss"
	}
	z.metrics.CacheLookups.WithLabelValues(name, result).Inc()
}

// CachedPoints decorates Client.GridPoint with a bounded FIFO+TTL cache keyed
// by rounded coordinates.
type CachedPoints struct {
	client  *Client
	cache   *cache.Cache[string, GridPoint]
	metrics *observability.Metrics
}

// NewCachedPoints creates the grid-point cache decorator.
func NewCachedPoints(client *Client, capacity int, clock clockwork.Clock, metrics *observability.Metrics) *CachedPoints {
	return &CachedPoints{
		client:  client,
		cache:   cache.New[string, GridPoint](capacity, gridTTL, clock),
		metrics: metrics,
	}
}

func (p *CachedPoints) GridPoint(ctx context.Context, lat, lon float64) (GridPoint, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	missed := false
	gp, err := p.cache.GetOrFetch(ctx, key, func(ctx context.Context) (GridPoint, error) {
		missed = true
		return p.client.GridPoint(ctx, lat, lon)
	})
	if err != nil {
		return GridPoint{}, err
	}
	result := "hit"
	if missed {
		result = "miss"
	}
	p.metrics.CacheLookups.WithLabelValues("gridpoint", result).Inc()
	return gp, nil
}

// ShortForecast resolves the grid cell for the coordinates (cache-backed) and
// fetches its current short forecast.
func (p *CachedPoints) ShortForecast(ctx context.Context, lat, lon float64) (string, error) {
	gp, err := p.GridPoint(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	return p.client.GridForecast(ctx, gp.ForecastURL)
}

// StationDirectory caches the full station list for a state, refreshed
// wholesale every 15 minutes rather than per key.
type StationDirectory struct {
	client   *Client
	state    string
	snapshot *cache.Snapshot[[]domain.Station]
}

// NewStationDirectory creates the station directory cache for a state.
func NewStationDirectory(client *Client, state string, clock clockwork.Clock) *StationDirectory {
	return &StationDirectory{
		client:   client,
		state:    state,
		snapshot: cache.NewSnapshot[[]domain.Station](directoryTTL, clock),
	}
}

// Stations returns the station directory, refreshing it when stale.
func (d *StationDirectory) Stations(ctx context.Context) ([]domain.Station, error) {
	return d.snapshot.Get(ctx, func(ctx context.Context) ([]domain.Station, error) {
		return d.client.Stations(ctx, d.state)
	})
}
