package collector_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"

	"github.com/mossglen/vtwx-ingest/internal/collector"
	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
	"github.com/mossglen/vtwx-ingest/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openStore returns a live sqlite store plus a second connection for
// inspecting what the collectors wrote.
func openStore(t *testing.T) (storage.Store, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "collector.db")
	store, err := storage.NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(context.Background()))

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store, db
}

type stubAlerts struct {
	alerts []domain.RawAlert
	err    error
	calls  int
}

func (s *stubAlerts) ActiveAlerts(context.Context, string) ([]domain.RawAlert, error) {
	s.calls++
	return s.alerts, s.err
}

type stubZones struct{}

func (stubZones) Zone(_ context.Context, id string) (domain.ZoneBoundary, error) {
	return domain.ZoneBoundary{}, errors.New("no boundary for " + id)
}

func squarePolygon() *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-72.8, 44.3}, {-72.7, 44.3}, {-72.7, 44.4}, {-72.8, 44.4}, {-72.8, 44.3},
	}})
}

func TestAlerts_Run_MergesAndPersists(t *testing.T) {
	store, db := openStore(t)
	source := &stubAlerts{alerts: []domain.RawAlert{
		{
			ID:            "urn:alert-1",
			Event:         "Winter Storm Warning",
			Severity:      "Severe",
			Certainty:     "Likely",
			Urgency:       "Expected",
			AffectedZones: []string{"VTZ003"},
			Geometry:      squarePolygon(),
		},
		{
			ID:            "urn:alert-2",
			Event:         "Winter Storm Warning",
			Severity:      "Moderate",
			Certainty:     "Likely",
			Urgency:       "Expected",
			AffectedZones: []string{"VTZ005"},
		},
	}}
	merger := domain.NewMerger(stubZones{}, "VT", discardLogger())
	c := collector.NewAlerts(source, merger, store, "VT",
		clockwork.NewFakeClock(), discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "two raw alerts of one event merge into one row")

	var id, event string
	require.NoError(t, db.QueryRow(
		`SELECT noaa_alert_id, event FROM alerts`).Scan(&id, &event))
	assert.Equal(t, "urn:alert-1", id, "primary member's id keys the row")
	assert.Equal(t, "Winter Storm Warning", event)
}

func TestAlerts_NilStoreSkipsUpstream(t *testing.T) {
	source := &stubAlerts{}
	merger := domain.NewMerger(stubZones{}, "VT", discardLogger())
	c := collector.NewAlerts(source, merger, nil, "VT",
		clockwork.NewFakeClock(), discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, source.calls, "disabled persistence means no upstream traffic")
}

type stubIncidents struct {
	snapshot []domain.Incident
}

func (s *stubIncidents) Incidents(context.Context) ([]domain.Incident, error) {
	return s.snapshot, nil
}

func TestIncidents_Lifecycle(t *testing.T) {
	store, db := openStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
	source := &stubIncidents{}
	c := collector.NewIncidents(source, store, clock,
		observability.NewMetricsForTesting(), discardLogger())

	active := domain.Incident{SourceID: "vt511-123", Type: "Incident", RoadName: "I-89"}
	run := func(snapshot ...domain.Incident) int {
		source.snapshot = snapshot
		clock.Advance(3 * time.Minute)
		n, err := c.Run(context.Background())
		require.NoError(t, err)
		return n
	}

	resolvedAt := func() sql.NullString {
		var v sql.NullString
		require.NoError(t, db.QueryRow(
			`SELECT resolved_at FROM incidents WHERE source_id = ?`,
			active.SourceID).Scan(&v))
		return v
	}

	// Cycles 1-2: active in consecutive snapshots, one row, unresolved.
	assert.Equal(t, 1, run(active))
	assert.Equal(t, 1, run(active))
	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM incidents`).Scan(&rows))
	assert.Equal(t, 1, rows)
	assert.False(t, resolvedAt().Valid)

	// Cycle 3: absent from the snapshot, row gets resolved.
	assert.Equal(t, 0, run())
	first := resolvedAt()
	require.True(t, first.Valid)

	// Cycle 4: the id reappears. Resolution is one-way; the stamp stays.
	assert.Equal(t, 1, run(active))
	again := resolvedAt()
	require.True(t, again.Valid)
	assert.Equal(t, first.String, again.String)
}

type stubStations struct {
	stations []domain.Station
}

func (s *stubStations) Stations(context.Context) ([]domain.Station, error) {
	return s.stations, nil
}

type stubObservations struct {
	byStation map[string]domain.Observation
}

func (s *stubObservations) LatestObservation(_ context.Context, id string) (domain.Observation, error) {
	o, ok := s.byStation[id]
	if !ok {
		return domain.Observation{}, errors.New("station offline")
	}
	return o, nil
}

func TestObservations_SkipsFailingStation(t *testing.T) {
	store, db := openStore(t)
	at := time.Date(2026, 1, 10, 9, 54, 0, 0, time.UTC)
	stations := &stubStations{stations: []domain.Station{
		{ID: "KBTV", Name: "Burlington International Airport"},
		{ID: "KMPV", Name: "Montpelier"},
	}}
	source := &stubObservations{byStation: map[string]domain.Observation{
		"KBTV": {StationID: "KBTV", ObservedAt: at, Temperature: "-5.6"},
	}}
	c := collector.NewObservations(stations, source, store, discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the offline station is skipped, its sibling lands")

	var name string
	require.NoError(t, db.QueryRow(
		`SELECT station_name FROM observations WHERE station_id = ?`, "KBTV").Scan(&name))
	assert.Equal(t, "Burlington International Airport", name,
		"directory name backfills observations that omit it")
}

type stubGauges struct {
	readings []domain.GaugeReading
	gotSites []string
}

func (s *stubGauges) Readings(_ context.Context, sites []string) ([]domain.GaugeReading, error) {
	s.gotSites = sites
	return s.readings, nil
}

func TestGauges_Run_AppendOnly(t *testing.T) {
	store, _ := openStore(t)
	source := &stubGauges{readings: []domain.GaugeReading{
		{SiteID: "04292000", ObservedAt: time.Date(2026, 1, 10, 9, 15, 0, 0, time.UTC), GaugeHeight: "3.42"},
	}}
	c := collector.NewGauges(source, store, []string{"04292000"}, discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"04292000"}, source.gotSites)

	// Same snapshot again: nothing new lands.
	n, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type stubReports struct {
	reports []domain.SkiReport
}

func (s *stubReports) Reports(context.Context) ([]domain.SkiReport, error) {
	return s.reports, nil
}

type stubForecaster struct {
	forecast string
	err      error
	calls    int
}

func (s *stubForecaster) ShortForecast(context.Context, float64, float64) (string, error) {
	s.calls++
	return s.forecast, s.err
}

func TestSki_Run_AnnotatesConfiguredAreas(t *testing.T) {
	store, db := openStore(t)
	source := &stubReports{reports: []domain.SkiReport{
		{Area: "Stowe", TrailsOpen: "98/116"},
		{Area: "Unknown Hill", TrailsOpen: "2/5"},
	}}
	forecasts := &stubForecaster{forecast: "Snow Showers, 28°F"}
	areas := []domain.SkiArea{{Name: "Stowe", Lat: 44.53, Lon: -72.78}}
	c := collector.NewSki(source, forecasts, store, areas,
		clockwork.NewFakeClock(), discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, forecasts.calls, "only configured areas get a forecast lookup")

	var forecast sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT forecast FROM ski_reports WHERE area = ?`, "Stowe").Scan(&forecast))
	assert.Equal(t, "Snow Showers, 28°F", forecast.String)

	require.NoError(t, db.QueryRow(
		`SELECT forecast FROM ski_reports WHERE area = ?`, "Unknown Hill").Scan(&forecast))
	assert.False(t, forecast.Valid)
}

func TestSki_Run_ForecastFailureKeepsReport(t *testing.T) {
	store, db := openStore(t)
	source := &stubReports{reports: []domain.SkiReport{{Area: "Stowe", TrailsOpen: "98/116"}}}
	forecasts := &stubForecaster{err: errors.New("gridpoint down")}
	areas := []domain.SkiArea{{Name: "Stowe", Lat: 44.53, Lon: -72.78}}
	c := collector.NewSki(source, forecasts, store, areas,
		clockwork.NewFakeClock(), discardLogger())

	n, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var forecast sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT forecast FROM ski_reports WHERE area = ?`, "Stowe").Scan(&forecast))
	assert.False(t, forecast.Valid, "the report lands without its annotation")
}
