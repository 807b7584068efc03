package domain_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/mossglen/vtwx-ingest/internal/domain"
)

// --- mocks ---

type stubZones struct {
	mu    sync.Mutex
	calls int
	zones map[string]domain.ZoneBoundary
	fail  map[string]bool
}

func (s *stubZones) Zone(_ context.Context, id string) (domain.ZoneBoundary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[id] {
		return domain.ZoneBoundary{}, fmt.Errorf("zone %s unavailable", id)
	}
	zb, ok := s.zones[id]
	if !ok {
		return domain.ZoneBoundary{}, fmt.Errorf("zone %s not found", id)
	}
	return zb, nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// square builds a unit square polygon anchored at (x, y).
func square(x, y float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
}

func newMerger(zones domain.ZoneFetcher) *domain.Merger {
	return domain.NewMerger(zones, "VT", testLogger())
}

// --- tests ---

func TestMerger_InlineGeometryWins(t *testing.T) {
	p1 := square(0, 0)
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(5, 5)},
	}}
	m := newMerger(zones)

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Winter Storm Warning", Geometry: p1, AffectedZones: []string{"VTZ001"}},
		{ID: "b", Event: "Winter Storm Warning", AffectedZones: []string{"VTZ001"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	require.NotNil(t, merged[0].Geometry)
	require.Equal(t, 1, merged[0].Geometry.NumPolygons())
	assert.Equal(t, p1.FlatCoords(), merged[0].Geometry.Polygon(0).FlatCoords())
	assert.Equal(t, 0, zones.calls, "zone boundaries must not be fetched when inline geometry exists")
}

func TestMerger_ZoneBoundaryFallback(t *testing.T) {
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", State: "VT", Geometry: square(0, 0)},
		"VTZ002": {ID: "VTZ002", Name: "Washington", State: "VT", Geometry: square(2, 2)},
	}}
	m := newMerger(zones)

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Flood Watch", AreaDesc: "Lamoille County", AffectedZones: []string{"VTZ001"}},
		{ID: "b", Event: "Flood Watch", AffectedZones: []string{"VTZ002"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	require.NotNil(t, merged[0].Geometry)
	assert.Equal(t, 2, merged[0].Geometry.NumPolygons())
	assert.Equal(t, "Lamoille; Washington", merged[0].AreaDesc)
	assert.Equal(t, []string{"VTZ001", "VTZ002"}, merged[0].AffectedZoneIDs)
	assert.Equal(t, []string{"a", "b"}, merged[0].MergedFrom)
}

func TestMerger_PrimaryIsHighestRanked(t *testing.T) {
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(0, 0)},
	}}
	m := newMerger(zones)

	severe := domain.RawAlert{
		ID: "severe-id", Event: "Severe Thunderstorm Warning",
		Severity: "Severe", Certainty: "Observed", Urgency: "Immediate",
		Headline: "severe headline", Description: "severe body",
		AffectedZones: []string{"VTZ001"},
	}
	extreme := domain.RawAlert{
		ID: "extreme-id", Event: "Severe Thunderstorm Warning",
		Severity: "Extreme", Certainty: "Possible", Urgency: "Future",
		Headline: "extreme headline", Description: "extreme body",
		AffectedZones: []string{"VTZ001"},
	}

	// Severity dominates certainty and urgency regardless of input order.
	for _, input := range [][]domain.RawAlert{{severe, extreme}, {extreme, severe}} {
		merged, err := m.Merge(context.Background(), input)
		require.NoError(t, err)
		require.Len(t, merged, 1)
		assert.Equal(t, "extreme-id", merged[0].ID)
		assert.Equal(t, "extreme headline", merged[0].Headline)
		assert.Equal(t, "extreme body", merged[0].Description)
		assert.Equal(t, "Extreme", merged[0].Severity)
	}
}

func TestMerger_CertaintyAndUrgencyBreakTies(t *testing.T) {
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(0, 0)},
	}}
	m := newMerger(zones)

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "later", Event: "Flood Watch", Severity: "Moderate", Certainty: "Likely", Urgency: "Expected", AffectedZones: []string{"VTZ001"}},
		{ID: "sooner", Event: "Flood Watch", Severity: "Moderate", Certainty: "Likely", Urgency: "Immediate", AffectedZones: []string{"VTZ001"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "sooner", merged[0].ID)
}

func TestMerger_TimeEnvelope(t *testing.T) {
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(0, 0)},
	}}
	m := newMerger(zones)

	t0 := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Wind Advisory", Effective: t0.Add(2 * time.Hour), Expires: t0.Add(8 * time.Hour), AffectedZones: []string{"VTZ001"}},
		{ID: "b", Event: "Wind Advisory", Effective: t0, Expires: t0.Add(4 * time.Hour), AffectedZones: []string{"VTZ001"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, t0, merged[0].Effective)
	assert.Equal(t, t0.Add(8*time.Hour), merged[0].Expires)
}

func TestMerger_SkipsGroupOutsideRegion(t *testing.T) {
	m := newMerger(&stubZones{})

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Flood Watch", AffectedZones: []string{"NHZ001", "NYZ087"}},
	})
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestMerger_PartialZoneFailureOmitsZone(t *testing.T) {
	zones := &stubZones{
		zones: map[string]domain.ZoneBoundary{
			"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(0, 0)},
		},
		fail: map[string]bool{"VTZ002": true},
	}
	m := newMerger(zones)

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Flood Warning", AffectedZones: []string{"VTZ001", "VTZ002"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	require.NotNil(t, merged[0].Geometry)
	assert.Equal(t, 1, merged[0].Geometry.NumPolygons(), "failed zone contributes no geometry")
	assert.Equal(t, "Lamoille", merged[0].AreaDesc)
	// The failed zone is still counted as affected; only its geometry is lost.
	assert.Equal(t, []string{"VTZ001", "VTZ002"}, merged[0].AffectedZoneIDs)
}

func TestMerger_OneMergedAlertPerEventType(t *testing.T) {
	zones := &stubZones{zones: map[string]domain.ZoneBoundary{
		"VTZ001": {ID: "VTZ001", Name: "Lamoille", Geometry: square(0, 0)},
	}}
	m := newMerger(zones)

	merged, err := m.Merge(context.Background(), []domain.RawAlert{
		{ID: "a", Event: "Winter Storm Warning", AffectedZones: []string{"VTZ001"}},
		{ID: "b", Event: "Flood Watch", AffectedZones: []string{"VTZ001"}},
		{ID: "c", Event: "Winter Storm Warning", AffectedZones: []string{"VTZ001"}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 2)
	// Groups come out sorted by event type.
	assert.Equal(t, "Flood Watch", merged[0].Event)
	assert.Equal(t, "Winter Storm Warning", merged[1].Event)
	assert.Equal(t, []string{"a", "c"}, merged[1].MergedFrom)
}

func TestSeverityRank_Ordering(t *testing.T) {
	assert.Greater(t, domain.SeverityRank("Extreme"), domain.SeverityRank("Severe"))
	assert.Greater(t, domain.SeverityRank("Severe"), domain.SeverityRank("Moderate"))
	assert.Greater(t, domain.SeverityRank("Moderate"), domain.SeverityRank("Minor"))
	assert.Greater(t, domain.SeverityRank("Minor"), domain.SeverityRank("Unknown"))
	assert.Equal(t, 0, domain.SeverityRank("bogus"))
	assert.Greater(t, domain.CertaintyRank("Observed"), domain.CertaintyRank("Likely"))
	assert.Greater(t, domain.UrgencyRank("Immediate"), domain.UrgencyRank("Expected"))
}
