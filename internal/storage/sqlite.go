package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mossglen/vtwx-ingest/internal/domain"
)

type sqliteStore struct {
	baseStore
}

// NewSQLite opens (or creates) a sqlite-backed store.
func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:vtwx.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
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
			effective TEXT,
			expires TEXT,
			merged_from TEXT NOT NULL,
			affected_zone_ids TEXT NOT NULL,
			first_seen_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_event ON alerts(event)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			severity TEXT,
			description TEXT,
			road_name TEXT,
			direction TEXT,
			city TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			reported_at TEXT,
			updated_at TEXT,
			first_seen_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL,
			resolved_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_resolved ON incidents(resolved_at)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id TEXT NOT NULL,
			station_name TEXT,
			observed_at TEXT NOT NULL,
			temperature NUMERIC,
			wind_speed NUMERIC,
			wind_dir NUMERIC,
			humidity NUMERIC,
			conditions TEXT,
			UNIQUE(station_id, observed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS gauge_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id TEXT NOT NULL,
			site_name TEXT,
			observed_at TEXT NOT NULL,
			gauge_height NUMERIC,
			discharge NUMERIC,
			water_temp NUMERIC,
			UNIQUE(site_id, observed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS ski_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			area TEXT NOT NULL,
			reported_at TEXT NOT NULL,
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

func (s *sqliteStore) UpsertAlerts(ctx context.Context, alerts []domain.MergedAlert, seenAt time.Time) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(noaa_alert_id) DO UPDATE SET
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

func (s *sqliteStore) UpsertIncidents(ctx context.Context, incidents []domain.Incident, seenAt time.Time) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
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

func (s *sqliteStore) ResolveAbsentIncidents(ctx context.Context, activeIDs []string, resolvedAt time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	query := `UPDATE incidents SET resolved_at = ? WHERE resolved_at IS NULL`
	args := []any{resolvedAt.UTC()}
	if len(activeIDs) > 0 {
		query += ` AND source_id NOT IN (?` + strings.Repeat(", ?", len(activeIDs)-1) + `)`
		for _, id := range activeIDs {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) InsertObservations(ctx context.Context, obs []domain.Observation) (int64, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO NOTHING`)
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

func (s *sqliteStore) InsertGaugeReadings(ctx context.Context, readings []domain.GaugeReading) (int64, error) {
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, observed_at) DO NOTHING`)
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

func (s *sqliteStore) InsertSkiReports(ctx context.Context, reports []domain.SkiReport) (int64, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(area, reported_at) DO NOTHING`)
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
