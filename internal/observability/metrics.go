package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	CollectorRuns  *prometheus.CounterVec // labels: collector, outcome={ok,failed}
	ItemsProcessed *prometheus.CounterVec // labels: collector
	RetryAttempts  *prometheus.CounterVec // labels: collector
	SchedulerUp    prometheus.Gauge

	// Upstream fetch metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: source, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: source

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: cache, result={hit,miss}

	IncidentsResolved prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CollectorRuns,
		m.ItemsProcessed,
		m.RetryAttempts,
		m.SchedulerUp,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.IncidentsResolved,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CollectorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "collector_runs_total",
			Help:      "Collector cycles by collector and outcome.",
		}, []string{"collector", "outcome"}),
		ItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "items_processed_total",
			Help:      "Records processed per collector cycle, summed.",
		}, []string{"collector"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts beyond the first, per collector.",
		}, []string{"collector"}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vtwx_ingest",
			Name:      "scheduler_up",
			Help:      "1 while the scheduler is running, 0 after shutdown.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vtwx_ingest",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		IncidentsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtwx_ingest",
			Name:      "incidents_resolved_total",
			Help:      "Incidents transitioned to resolved after dropping from the feed.",
		}),
	}
}
