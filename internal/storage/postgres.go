package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mossglen/vtwx-ingest/internal/domain"
)

type postgresStore struct {
	baseStore
}

// NewPostgres opens a postgres-backed store via the pgx stdlib driver.
func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/vtwx?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			noaa_alert_id TEXT NOT NULL UNIQUE,
			event TEXT NOT NULL,
			severity TEXT NOT NULL,
			certainty TEXT NOT NULL,
			urgency TEXT NOT NULL,
			headline TEXT,
			description TEXT,
			instruction TEXT,
			area_desc TEXT,
			geometry TEXT,
			effective TIMESTAMPTZ,
			expires TIMESTAMPTZ,
			merged_from JSONB NOT NULL,
			affected_zone_ids JSONB NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_event ON alerts(event)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id BIGSERIAL PRIMARY KEY,
			source_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			severity TEXT,
			description TEXT,
			road_name TEXT,
			direction TEXT,
			city TEXT,
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			reported_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ,
			first_seen_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_resolved ON incidents(resolved_at)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id BIGSERIAL PRIMARY KEY,
			station_id TEXT NOT NULL,
			station_name TEXT,
			observed_at TIMESTAMPTZ NOT NULL,
			temperature NUMERIC,
			wind_speed NUMERIC,
			wind_dir NUMERIC,
			humidity NUMERIC,
			conditions TEXT,
			UNIQUE(station_id, observed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS gauge_readings (
			id BIGSERIAL PRIMARY KEY,
			site_id TEXT NOT NULL,
			site_name TEXT,
			observed_at TIMESTAMPTZ NOT NULL,
			gauge_height NUMERIC,
			discharge NUMERIC,
			water_temp NUMERIC,
			UNIQUE(site_id, observed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS ski_reports (
			id BIGSERIAL PRIMARY KEY,
			area TEXT NOT NULL,
			reported_at TIMESTAMPTZ NOT NULL,
			trails_open TEXT,
			lifts_open TEXT,
			base_depth TEXT,
			surface TEXT,
			forecast TEXT,
			UNIQUE(area, reported_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) UpsertAlerts(ctx context.Context, alerts []domain.MergedAlert, seenAt time.Time) error {
	if s.db == nil || len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Rows are immutable after insert; a re-observed id only touches
	// last_seen_at.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alerts (noaa_alert_id, event, severity, certainty, urgency,
			headline, description, instruction, area_desc, geometry,
			effective, expires, merged_from, affected_zone_ids,
			first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (noaa_alert_id) DO UPDATE SET
			last_seen_at = excluded.last_seen_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.Event, a.Severity, a.Certainty, a.Urgency,
			a.Headline, a.Description, a.Instruction, a.AreaDesc,
			encodeGeometry(a.Geometry),
			nullTime(a.Effective), nullTime(a.Expires),
			encodeJSON(a.MergedFrom), encodeJSON(a.AffectedZoneIDs),
			seenAt.UTC(), seenAt.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) UpsertIncidents(ctx context.Context, incidents []domain.Incident, seenAt time.Time) error {
	if s.db == nil || len(incidents) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Touch-only on conflict: content stays as first observed, and a re-used
	// source id never reopens a resolved row.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO incidents (source_id, type, severity, description,
			road_name, direction, city, lat, lon,
			reported_at, updated_at, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id) DO UPDATE SET
			last_seen_at = excluded.last_seen_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, in := range incidents {
		if _, err := stmt.ExecContext(ctx,
			in.SourceID, in.Type, in.Severity, in.Description,
			in.RoadName, in.Direction, in.City, in.Lat, in.Lon,
			nullTime(in.Reported), nullTime(in.Updated),
			seenAt.UTC(), seenAt.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) ResolveAbsentIncidents(ctx context.Context, activeIDs []string, resolvedAt time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	query := `UPDATE incidents SET resolved_at = $1 WHERE resolved_at IS NULL`
	args := []any{resolvedAt.UTC()}
	if len(activeIDs) > 0 {
		placeholders := make([]string, len(activeIDs))
		for i, id := range activeIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, id)
		}
		query += ` AND source_id NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *postgresStore) InsertObservations(ctx context.Context, obs []domain.Observation) (int64, error) {
	if s.db == nil || len(obs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (station_id, station_name, observed_at,
			temperature, wind_speed, wind_dir, humidity, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (station_id, observed_at) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	var inserted int64
	for _, o := range obs {
		res, err := stmt.ExecContext(ctx,
			o.StationID, o.StationName, o.ObservedAt.UTC(),
			nullString(o.Temperature), nullString(o.WindSpeed),
			nullString(o.WindDir), nullString(o.Humidity),
			nullString(o.Conditions),
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *postgresStore) InsertGaugeReadings(ctx context.Context, readings []domain.GaugeReading) (int64, error) {
	if s.db == nil || len(readings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gauge_readings (site_id, site_name, observed_at,
			gauge_height, discharge, water_temp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (site_id, observed_at) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	var inserted int64
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx,
			r.SiteID, r.SiteName, r.ObservedAt.UTC(),
			nullString(r.GaugeHeight), nullString(r.Discharge),
			nullString(r.WaterTemp),
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *postgresStore) InsertSkiReports(ctx context.Context, reports []domain.SkiReport) (int64, error) {
	if s.db == nil || len(reports) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ski_reports (area, reported_at, trails_open, lifts_open,
			base_depth, surface, forecast)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (area, reported_at) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	var inserted int64
	for _, r := range reports {
		res, err := stmt.ExecContext(ctx,
			r.Area, r.ReportedAt.UTC(),
			nullString(r.TrailsOpen), nullString(r.LiftsOpen),
			nullString(r.BaseDepth), nullString(r.Surface),
			nullString(r.Forecast),
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
