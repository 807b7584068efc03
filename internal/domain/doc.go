// Package domain models the public feeds this service ingests: National
// Weather Service (NWS) alerts and station observations, USGS river gauge
// readings, and state 511 traffic incidents.
//
// # Data Sources
//
// Alerts, zone boundaries, stations, and observations come from the NWS API
// at https://api.weather.gov (GeoJSON). The API requires a contact-identifying
// User-Agent header; anonymous clients are throttled or rejected.
//
// Gauge readings come from the USGS Instantaneous Values service at
// https://waterservices.usgs.gov/nwis/iv/ (JSON). Parameter codes of interest:
//
//	00060  discharge, cubic feet per second
//	00065  gauge height, feet
//	00010  water temperature, degrees Celsius
//
// Traffic incidents come from a state 511 XML event feed. Incident identity is
// the feed's own event id (e.g. "vt511-123"); the feed carries only currently
// active events, so disappearance from a snapshot means resolution.
//
// # Alert Merging
//
// The NWS issues one alert per forecast zone, so a single storm produces a
// pile of near-duplicate alerts. [Merger] collapses all active alerts sharing
// an event type into one synthetic record per type. The representative
// severity, certainty, and urgency come from the highest-ranked member under
// the CAP vocabularies:
//
//	Severity:  Extreme > Severe > Moderate > Minor > Unknown
//	Certainty: Observed > Likely > Possible > Unlikely > Unknown
//	Urgency:   Immediate > Expected > Future > Past > Unknown
//
// Merged geometry is a concatenation of member polygons, not a true union.
// Inline alert geometry always wins: zone boundary polygons are consulted only
// when no member of the group carries its own geometry.
//
// # Measurements
//
// Observation and gauge values are carried as decimal strings exactly as the
// upstream reports them (or formatted to one decimal place when the upstream
// sends floats) and persisted into NUMERIC columns, avoiding binary float
// drift across the write/read path.
package domain
