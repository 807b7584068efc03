package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

// AlertSource fetches the current active-alert snapshot for an area code.
type AlertSource interface {
	ActiveAlerts(ctx context.Context, area string) ([]domain.RawAlert, error)
}

// Alerts fetches active alerts, merges them per event type, and upserts the
// merged rows by their primary NOAA id.
type Alerts struct {
	source AlertSource
	merger *domain.Merger
	store  storage.Store
	region string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewAlerts creates the alert collector.
func NewAlerts(source AlertSource, merger *domain.Merger, store storage.Store, region string, clock clockwork.Clock, logger *slog.Logger) *Alerts {
	return &Alerts{
		source: source,
		merger: merger,
		store:  store,
		region: region,
		clock:  clock,
		logger: logger,
	}
}

func (c *Alerts) Name() string { return "alerts" }

func (c *Alerts) Run(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	raw, err := c.source.ActiveAlerts(ctx, c.region)
	if err != nil {
		return 0, err
	}

	merged, err := c.merger.Merge(ctx, raw)
	if err != nil {
		return 0, err
	}

	if err := c.store.UpsertAlerts(ctx, merged, c.clock.Now()); err != nil {
		return 0, fmt.Errorf("persist alerts: %w", err)
	}

	c.logger.Info("alerts collected", "raw", len(raw), "merged", len(merged))
	return len(merged), nil
}
