package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

// IncidentSource fetches the current snapshot of active traffic incidents.
type IncidentSource interface {
	Incidents(ctx context.Context) ([]domain.Incident, error)
}

// Incidents upserts the active incident snapshot and resolves every stored
// incident whose source id has dropped out of the feed.
type Incidents struct {
	source  IncidentSource
	store   storage.Store
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewIncidents creates the traffic incident collector.
func NewIncidents(source IncidentSource, store storage.Store, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Incidents {
	return &Incidents{
		source:  source,
		store:   store,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *Incidents) Name() string { return "incidents" }

func (c *Incidents) Run(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	incidents, err := c.source.Incidents(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now()
	if err := c.store.UpsertIncidents(ctx, incidents, now); err != nil {
		return 0, fmt.Errorf("persist incidents: %w", err)
	}

	activeIDs := make([]string, 0, len(incidents))
	for _, in := range incidents {
		activeIDs = append(activeIDs, in.SourceID)
	}
	resolved, err := c.store.ResolveAbsentIncidents(ctx, activeIDs, now)
	if err != nil {
		return 0, fmt.Errorf("resolve incidents: %w", err)
	}
	if resolved > 0 {
		c.metrics.IncidentsResolved.Add(float64(resolved))
		c.logger.Info("incidents resolved", "count", resolved)
	}

	c.logger.Info("incidents collected", "active", len(incidents), "resolved", resolved)
	return len(incidents), nil
}
