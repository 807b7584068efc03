package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

// ReportSource scrapes the ski conditions page.
type ReportSource interface {
	Reports(ctx context.Context) ([]domain.SkiReport, error)
}

// Forecaster returns the short NWS forecast for a coordinate pair.
type Forecaster interface {
	ShortForecast(ctx context.Context, lat, lon float64) (string, error)
}

// Ski scrapes the conditions page and annotates each configured area's report
// with the NWS forecast for its coordinates. A forecast failure keeps the
// report, just without the annotation.
type Ski struct {
	source    ReportSource
	forecasts Forecaster
	store     storage.Store
	areas     map[string]domain.SkiArea
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewSki creates the ski conditions collector.
func NewSki(source ReportSource, forecasts Forecaster, store storage.Store, areas []domain.SkiArea, clock clockwork.Clock, logger *slog.Logger) *Ski {
	byName := make(map[string]domain.SkiArea, len(areas))
	for _, a := range areas {
		byName[a.Name] = a
	}
	return &Ski{
		source:    source,
		forecasts: forecasts,
		store:     store,
		areas:     byName,
		clock:     clock,
		logger:    logger,
	}
}

func (c *Ski) Name() string { return "ski" }

func (c *Ski) Run(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	reports, err := c.source.Reports(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock.Now().UTC()
	for i := range reports {
		reports[i].ReportedAt = now

		area, ok := c.areas[reports[i].Area]
		if !ok {
			continue
		}
		forecast, err := c.forecasts.ShortForecast(ctx, area.Lat, area.Lon)
		if err != nil {
			c.logger.Warn("forecast unavailable", "area", area.Name, "error", err)
			continue
		}
		reports[i].Forecast = forecast
	}

	inserted, err := c.store.InsertSkiReports(ctx, reports)
	if err != nil {
		return 0, fmt.Errorf("persist ski reports: %w", err)
	}

	c.logger.Info("ski reports collected", "reports", len(reports), "inserted", inserted)
	return int(inserted), nil
}
