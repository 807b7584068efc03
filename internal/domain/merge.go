package domain

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
)

// ZoneFetcher resolves a forecast zone id to its boundary. Implementations
// are expected to cache aggressively; zone geometry changes rarely.
type ZoneFetcher interface {
	Zone(ctx context.Context, id string) (ZoneBoundary, error)
}

// Merger collapses raw alerts into one synthetic alert per event type for a
// target region. Region is a state-style zone prefix such as "VT": only zones
// whose id starts with it count as affected.
type Merger struct {
	zones  ZoneFetcher
	region string
	logger *slog.Logger
}

// NewMerger creates a merge engine backed by the given zone fetcher.
func NewMerger(zones ZoneFetcher, region string, logger *slog.Logger) *Merger {
	return &Merger{zones: zones, region: region, logger: logger}
}

// Merge groups alerts by event type and produces one MergedAlert per group
// that affects at least one region zone. A single zone lookup failure drops
// that zone's contribution and nothing else; callers see a fully merged
// result or, for whole-feed failures upstream of this call, an UpstreamError
// from the fetcher.
func (m *Merger) Merge(ctx context.Context, alerts []RawAlert) ([]MergedAlert, error) {
	groups := make(map[string][]RawAlert)
	order := make([]string, 0, len(groups))
	for _, a := range alerts {
		if a.Event == "" {
			continue
		}
		if _, ok := groups[a.Event]; !ok {
			order = append(order, a.Event)
		}
		groups[a.Event] = append(groups[a.Event], a)
	}
	sort.Strings(order)

	merged := make([]MergedAlert, 0, len(order))
	for _, event := range order {
		group := groups[event]

		regionZones := m.regionZoneIDs(group)
		if len(regionZones) == 0 {
			continue
		}

		// Zone boundaries only matter when no member carries inline geometry;
		// skipping the lookups otherwise avoids pointless upstream traffic.
		var boundaries []ZoneBoundary
		if !anyInlineGeometry(group) {
			boundaries = m.fetchBoundaries(ctx, regionZones)
		}
		merged = append(merged, m.mergeGroup(group, regionZones, boundaries))
	}
	return merged, nil
}

// regionZoneIDs returns the sorted set of region-prefixed zone ids referenced
// by any member of the group.
func (m *Merger) regionZoneIDs(group []RawAlert) []string {
	seen := make(map[string]struct{})
	for _, a := range group {
		for _, z := range a.AffectedZones {
			if strings.HasPrefix(z, m.region) {
				seen[z] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for z := range seen {
		ids = append(ids, z)
	}
	sort.Strings(ids)
	return ids
}

func anyInlineGeometry(group []RawAlert) bool {
	for _, a := range group {
		if a.Geometry != nil {
			return true
		}
	}
	return false
}

// fetchBoundaries resolves zone boundaries in parallel. Failures are logged
// and the zone omitted; the group still completes.
func (m *Merger) fetchBoundaries(ctx context.Context, ids []string) []ZoneBoundary {
	if len(ids) == 0 {
		return nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	found := make(map[string]ZoneBoundary, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			zb, err := m.zones.Zone(ctx, id)
			if err != nil {
				m.logger.Warn("zone boundary lookup failed, omitting zone",
					"zone", id, "error", err)
				return
			}
			mu.Lock()
			found[id] = zb
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// Preserve the input order so merged geometry is deterministic.
	out := make([]ZoneBoundary, 0, len(found))
	for _, id := range ids {
		if zb, ok := found[id]; ok {
			out = append(out, zb)
		}
	}
	return out
}

func (m *Merger) mergeGroup(group []RawAlert, regionZones []string, boundaries []ZoneBoundary) MergedAlert {
	primary := group[0]
	for _, a := range group[1:] {
		if moreUrgent(a, primary) {
			primary = a
		}
	}

	var effective, expires time.Time
	mergedFrom := make([]string, 0, len(group))
	inline := make([]geom.T, 0, len(group))
	for _, a := range group {
		mergedFrom = append(mergedFrom, a.ID)
		if a.Geometry != nil {
			inline = append(inline, a.Geometry)
		}
		if !a.Effective.IsZero() && (effective.IsZero() || a.Effective.Before(effective)) {
			effective = a.Effective
		}
		if !a.Expires.IsZero() && a.Expires.After(expires) {
			expires = a.Expires
		}
	}

	// Inline geometry wins wholesale: zone boundaries contribute only when no
	// member carries its own polygon.
	var geometry *geom.MultiPolygon
	if len(inline) > 0 {
		geometry = m.concatGeometries(inline)
	} else {
		gs := make([]geom.T, 0, len(boundaries))
		for _, zb := range boundaries {
			if zb.Geometry != nil {
				gs = append(gs, zb.Geometry)
			}
		}
		geometry = m.concatGeometries(gs)
	}

	areaDesc := primary.AreaDesc
	if names := zoneNames(boundaries); len(names) > 0 {
		areaDesc = strings.Join(names, "; ")
	}

	return MergedAlert{
		ID:              primary.ID,
		Event:           primary.Event,
		Severity:        primary.Severity,
		Certainty:       primary.Certainty,
		Urgency:         primary.Urgency,
		Headline:        primary.Headline,
		Description:     primary.Description,
		Instruction:     primary.Instruction,
		AreaDesc:        areaDesc,
		Geometry:        geometry,
		Effective:       effective,
		Expires:         expires,
		MergedFrom:      mergedFrom,
		AffectedZoneIDs: regionZones,
	}
}

// concatGeometries flattens polygons and multipolygons into one MultiPolygon.
// This is concatenation, not a union: overlapping rings stay overlapping.
func (m *Merger) concatGeometries(gs []geom.T) *geom.MultiPolygon {
	if len(gs) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, g := range gs {
		switch t := g.(type) {
		case *geom.Polygon:
			if err := mp.Push(flattenPolygon(t)); err != nil {
				m.logger.Warn("skipping polygon with incompatible layout", "error", err)
			}
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				if err := mp.Push(flattenPolygon(t.Polygon(i))); err != nil {
					m.logger.Warn("skipping polygon with incompatible layout", "error", err)
				}
			}
		default:
			m.logger.Warn("skipping non-polygon alert geometry", "type", fmtGeomType(g))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flattenPolygon reduces a polygon to an XY layout. NWS occasionally emits
// XYZ coordinates with a zero elevation.
func flattenPolygon(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	out := geom.NewPolygon(geom.XY)
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		coords := ring.Coords()
		flat := make([]geom.Coord, len(coords))
		for j, c := range coords {
			flat[j] = geom.Coord{c.X(), c.Y()}
		}
		out.Push(geom.NewLinearRing(geom.XY).MustSetCoords(flat))
	}
	return out
}

func fmtGeomType(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	default:
		return "unknown"
	}
}

func zoneNames(boundaries []ZoneBoundary) []string {
	names := make([]string, 0, len(boundaries))
	for _, zb := range boundaries {
		if zb.Name != "" {
			names = append(names, zb.Name)
		}
	}
	return names
}
