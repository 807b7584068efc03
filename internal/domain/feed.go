package domain

import "time"

// Station is one entry in the NWS observation station directory.
type Station struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// Observation is one station observation snapshot. Numeric fields are decimal
// strings; empty means the station did not report that value.
type Observation struct {
	StationID   string
	StationName string
	ObservedAt  time.Time
	Temperature string // degrees Celsius
	WindSpeed   string // km/h
	WindDir     string // degrees true
	Humidity    string // percent
	Conditions  string // e.g. "Light Snow"
}

// GaugeReading is one river gauge snapshot for a USGS site at a single
// timestamp. Values are decimal strings straight from the upstream; empty
// means the site does not report that parameter.
type GaugeReading struct {
	SiteID      string
	SiteName    string
	ObservedAt  time.Time
	GaugeHeight string // feet
	Discharge   string // cubic feet per second
	WaterTemp   string // degrees Celsius
}

// Incident is one active traffic event from the 511 feed.
type Incident struct {
	SourceID    string
	Type        string
	Severity    string
	Description string
	RoadName    string
	Direction   string
	City        string
	Lat         float64
	Lon         float64
	Reported    time.Time
	Updated     time.Time
}

// SkiArea identifies a ski area and the coordinates used for its forecast.
type SkiArea struct {
	Name string
	Lat  float64
	Lon  float64
}

// SkiReport is one scraped conditions report for a ski area, optionally
// annotated with the NWS short forecast for the area's coordinates.
type SkiReport struct {
	Area       string
	ReportedAt time.Time
	TrailsOpen string // e.g. "45/120"
	LiftsOpen  string // e.g. "6/8"
	BaseDepth  string // e.g. "18-24"
	Surface    string // e.g. "Packed Powder"
	Forecast   string
}
