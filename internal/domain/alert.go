package domain

import (
	"time"

	"github.com/twpayne/go-geom"
)

// RawAlert is one active alert as issued by the NWS, before merging.
// Geometry is nil when the alert carries no inline polygon; such alerts
// reference their affected forecast zones instead.
type RawAlert struct {
	ID            string
	Event         string
	Severity      string
	Certainty     string
	Urgency       string
	Headline      string
	Description   string
	Instruction   string
	AreaDesc      string
	AffectedZones []string // zone ids, e.g. "VTZ003"
	Geometry      geom.T   // Polygon or MultiPolygon, nil if absent
	Effective     time.Time
	Expires       time.Time
}

// ZoneBoundary is an NWS forecast zone with its polygon boundary.
type ZoneBoundary struct {
	ID       string
	Name     string
	State    string
	Geometry geom.T
}

// MergedAlert is one synthetic alert per event type, covering every raw alert
// of that type that affects the target region. ID is the NOAA id of the
// primary (highest-ranked) member.
type MergedAlert struct {
	ID              string
	Event           string
	Severity        string
	Certainty       string
	Urgency         string
	Headline        string
	Description     string
	Instruction     string
	AreaDesc        string
	Geometry        *geom.MultiPolygon // concatenated member polygons
	Effective       time.Time          // earliest member effective
	Expires         time.Time          // latest member expires
	MergedFrom      []string           // NOAA ids of all members
	AffectedZoneIDs []string           // region zones, sorted
}

// CAP vocabulary ranks. Higher wins; anything unrecognized ranks as Unknown.
var (
	severityRank = map[string]int{
		"Extreme":  4,
		"Severe":   3,
		"Moderate": 2,
		"Minor":    1,
		"Unknown":  0,
	}
	certaintyRank = map[string]int{
		"Observed": 4,
		"Likely":   3,
		"Possible": 2,
		"Unlikely": 1,
		"Unknown":  0,
	}
	urgencyRank = map[string]int{
		"Immediate": 4,
		"Expected":  3,
		"Future":    2,
		"Past":      1,
		"Unknown":   0,
	}
)

// SeverityRank maps a CAP severity string to its numeric rank.
func SeverityRank(s string) int { return severityRank[s] }

// CertaintyRank maps a CAP certainty string to its numeric rank.
func CertaintyRank(s string) int { return certaintyRank[s] }

// UrgencyRank maps a CAP urgency string to its numeric rank.
func UrgencyRank(s string) int { return urgencyRank[s] }

// moreUrgent reports whether a outranks b under
// (severity, certainty, urgency), compared in that order.
func moreUrgent(a, b RawAlert) bool {
	if sa, sb := SeverityRank(a.Severity), SeverityRank(b.Severity); sa != sb {
		return sa > sb
	}
	if ca, cb := CertaintyRank(a.Certainty), CertaintyRank(b.Certainty); ca != cb {
		return ca > cb
	}
	return UrgencyRank(a.Urgency) > UrgencyRank(b.Urgency)
}
