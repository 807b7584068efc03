package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/mossglen/vtwx-ingest/internal/adapter/http"
	"github.com/mossglen/vtwx-ingest/internal/adapter/nws"
	"github.com/mossglen/vtwx-ingest/internal/adapter/ski"
	"github.com/mossglen/vtwx-ingest/internal/adapter/traffic"
	"github.com/mossglen/vtwx-ingest/internal/adapter/usgs"
	"github.com/mossglen/vtwx-ingest/internal/collector"
	"github.com/mossglen/vtwx-ingest/internal/config"
	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
	"github.com/mossglen/vtwx-ingest/internal/retry"
	"github.com/mossglen/vtwx-ingest/internal/scheduler"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

// Collector cadences. Matched to how often each upstream actually refreshes.
const (
	alertsInterval       = 2 * time.Minute
	incidentsInterval    = 3 * time.Minute
	observationsInterval = 5 * time.Minute
	gaugesInterval       = 10 * time.Minute
	skiInterval          = 30 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	if store == nil {
		logger.Warn("persistence disabled, collectors will no-op")
	} else {
		if err := store.Init(ctx); err != nil {
			logger.Error("failed to initialize store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("store close error", "error", err)
			}
		}()
	}

	nwsClient := nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.UpstreamTimeout, metrics, logger)
	zones := nws.NewCachedZones(nwsClient, cfg.ZoneCacheSize, clock, metrics)
	points := nws.NewCachedPoints(nwsClient, cfg.GridCacheSize, clock, metrics)
	directory := nws.NewStationDirectory(nwsClient, cfg.Region, clock)
	merger := domain.NewMerger(zones, cfg.Region, logger)

	entries := []scheduler.Entry{
		{
			Name:      "alerts",
			Collector: collector.NewAlerts(nwsClient, merger, store, cfg.Region, clock, logger),
			Interval:  alertsInterval,
		},
		{
			Name:      "observations",
			Collector: collector.NewObservations(directory, nwsClient, store, logger),
			Interval:  observationsInterval,
		},
	}

	if len(cfg.USGSSites) > 0 {
		usgsClient := usgs.NewClient(cfg.USGSBaseURL, cfg.UpstreamTimeout, metrics, logger)
		entries = append(entries, scheduler.Entry{
			Name:      "gauges",
			Collector: collector.NewGauges(usgsClient, store, cfg.USGSSites, logger),
			Interval:  gaugesInterval,
		})
	}
	if cfg.TrafficFeedURL != "" {
		trafficClient := traffic.NewClient(cfg.TrafficFeedURL, cfg.UpstreamTimeout, metrics, logger)
		entries = append(entries, scheduler.Entry{
			Name:      "incidents",
			Collector: collector.NewIncidents(trafficClient, store, clock, metrics, logger),
			Interval:  incidentsInterval,
		})
	} else {
		logger.Info("traffic feed not configured, incident collector disabled")
	}
	if cfg.SkiPageURL != "" {
		scraper := ski.NewScraper(cfg.SkiPageURL, cfg.UpstreamTimeout, metrics, logger)
		entries = append(entries, scheduler.Entry{
			Name:      "ski",
			Collector: collector.NewSki(scraper, points, store, cfg.SkiAreas, clock, logger),
			Interval:  skiInterval,
		})
	} else {
		logger.Info("ski page not configured, ski collector disabled")
	}

	runner := retry.NewRunner(clock, metrics, logger)
	sched := scheduler.New(entries, store != nil, runner, clock, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
