// Package storage persists collected snapshots. Alerts and incidents are
// lifecycle-tracked rows keyed by their upstream natural id; observations and
// gauge readings are append-only history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mossglen/vtwx-ingest/internal/domain"
)

// Store is the persistence surface the collectors write through.
//
// Upsert methods are atomic per row: first_seen_at is written once on insert
// and never changes, last_seen_at advances on every observation of the same
// natural key. Insert methods silently skip rows already present.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	UpsertAlerts(ctx context.Context, alerts []domain.MergedAlert, seenAt time.Time) error
	UpsertIncidents(ctx context.Context, incidents []domain.Incident, seenAt time.Time) error

	// ResolveAbsentIncidents stamps resolved_at on every unresolved incident
	// whose source id is missing from activeIDs. Already-resolved rows are
	// never touched; resolution is one-way.
	ResolveAbsentIncidents(ctx context.Context, activeIDs []string, resolvedAt time.Time) (int64, error)

	InsertObservations(ctx context.Context, obs []domain.Observation) (int64, error)
	InsertGaugeReadings(ctx context.Context, readings []domain.GaugeReading) (int64, error)
	InsertSkiReports(ctx context.Context, reports []domain.SkiReport) (int64, error)
}

// NewStore builds a store for the configured driver. An empty driver means
// persistence is disabled; callers get a nil Store and must treat it as a
// no-op sink.
func NewStore(driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return nil, nil
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, errors.New("unsupported storage driver: " + driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

// encodeGeometry renders a merged geometry as GeoJSON text, or nil when the
// alert has no polygon.
func encodeGeometry(g *geom.MultiPolygon) any {
	if g == nil {
		return nil
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil
	}
	return string(data)
}

// nullString maps the adapters' empty-means-unreported convention onto SQL
// NULL so NUMERIC columns never see an empty string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
