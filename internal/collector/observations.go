package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

// StationLister returns the observation station directory.
type StationLister interface {
	Stations(ctx context.Context) ([]domain.Station, error)
}

// ObservationSource fetches the latest observation for one station.
type ObservationSource interface {
	LatestObservation(ctx context.Context, stationID string) (domain.Observation, error)
}

// Observations walks the station directory and appends each station's latest
// observation. A station that fails to report is skipped; its siblings still
// land.
type Observations struct {
	stations StationLister
	source   ObservationSource
	store    storage.Store
	logger   *slog.Logger
}

// NewObservations creates the weather observation collector.
func NewObservations(stations StationLister, source ObservationSource, store storage.Store, logger *slog.Logger) *Observations {
	return &Observations{
		stations: stations,
		source:   source,
		store:    store,
		logger:   logger,
	}
}

func (c *Observations) Name() string { return "observations" }

func (c *Observations) Run(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	stations, err := c.stations.Stations(ctx)
	if err != nil {
		return 0, err
	}

	obs := make([]domain.Observation, 0, len(stations))
	for _, st := range stations {
		o, err := c.source.LatestObservation(ctx, st.ID)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.logger.Warn("skipping station", "station", st.ID, "error", err)
			continue
		}
		if o.StationName == "" {
			o.StationName = st.Name
		}
		obs = append(obs, o)
	}

	inserted, err := c.store.InsertObservations(ctx, obs)
	if err != nil {
		return 0, fmt.Errorf("persist observations: %w", err)
	}

	c.logger.Info("observations collected",
		"stations", len(stations), "fetched", len(obs), "inserted", inserted)
	return int(inserted), nil
}
