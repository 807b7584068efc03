// Command feedsim serves synthetic versions of every upstream the service
// polls: NWS alerts, zones, stations, observations and forecasts, USGS
// instantaneous values, a 511-style incident feed, and a ski conditions page.
// It lets ingestd run end-to-end with no network access.
//
// Usage:
//
//	go run ./cmd/feedsim -addr :9090
//
// then point the service at it:
//
//	NWS_BASE_URL=http://localhost:9090 \
//	USGS_BASE_URL=http://localhost:9090 \
//	TRAFFIC_FEED_URL=http://localhost:9090/traffic.xml \
//	SKI_PAGE_URL=http://localhost:9090/ski.html \
//	NWS_USER_AGENT=dev@localhost ./ingestd
//
// The incident feed drops one event on every other request so the resolution
// path gets exercised.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var requests atomic.Int64

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /alerts/active", serveAlerts)
	mux.HandleFunc("GET /zones/forecast/{id}", serveZone)
	mux.HandleFunc("GET /stations", serveStations)
	mux.HandleFunc("GET /stations/{id}/observations/latest", serveObservation)
	mux.HandleFunc("GET /points/{coords}", servePoints)
	mux.HandleFunc("GET /gridpoints/BTV/90,60/forecast", serveForecast)
	mux.HandleFunc("GET /nwis/iv/", serveGauges)
	mux.HandleFunc("GET /traffic.xml", serveTraffic)
	mux.HandleFunc("GET /ski.html", serveSki)

	log.Printf("feedsim listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, logRequests(mux)))
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write([]byte(body))
}

func serveAlerts(w http.ResponseWriter, r *http.Request) {
	area := r.URL.Query().Get("area")
	if area == "" {
		area = "VT"
	}
	now := time.Now().UTC()
	effective := now.Add(-time.Hour).Format(time.RFC3339)
	expires := now.Add(6 * time.Hour).Format(time.RFC3339)

	// Two alerts of the same event type: one with an inline polygon, one
	// zone-referenced, so the merge path sees both shapes.
	writeJSON(w, fmt.Sprintf(`{
  "features": [
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.sim-storm-north",
        "event": "Winter Storm Warning",
        "severity": "Severe",
        "certainty": "Likely",
        "urgency": "Expected",
        "headline": "Winter Storm Warning until tonight",
        "description": "Heavy snow expected. Total accumulations of 8 to 14 inches.",
        "instruction": "Travel only in an emergency.",
        "areaDesc": "Lamoille; Washington",
        "affectedZones": ["https://api.weather.gov/zones/forecast/%[1]sZ005"],
        "effective": %[2]q,
        "expires": %[3]q
      },
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[-72.9, 44.3], [-72.5, 44.3], [-72.5, 44.6], [-72.9, 44.6], [-72.9, 44.3]]]
      }
    },
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.sim-storm-south",
        "event": "Winter Storm Warning",
        "severity": "Moderate",
        "certainty": "Likely",
        "urgency": "Expected",
        "headline": "Winter Storm Warning for southern zones",
        "description": "Snow, heavy at times.",
        "areaDesc": "Windham",
        "affectedZones": ["https://api.weather.gov/zones/forecast/%[1]sZ013"],
        "effective": %[2]q,
        "expires": %[3]q
      },
      "geometry": null
    }
  ]
}`, area, effective, expires))
}

func serveZone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state := "VT"
	if len(id) >= 2 {
		state = id[:2]
	}
	writeJSON(w, fmt.Sprintf(`{
  "properties": {"id": %[1]q, "name": "Simulated Zone %[1]s", "state": %[2]q},
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[-73.0, 44.0], [-72.0, 44.0], [-72.0, 45.0], [-73.0, 45.0], [-73.0, 44.0]]]
  }
}`, id, state))
}

func serveStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, `{
  "features": [
    {
      "properties": {"stationIdentifier": "KBTV", "name": "Burlington International Airport"},
      "geometry": {"coordinates": [-73.15, 44.47]}
    },
    {
      "properties": {"stationIdentifier": "KMPV", "name": "Montpelier, Edward F Knapp State Airport"},
      "geometry": {"coordinates": [-72.56, 44.2]}
    }
  ]
}`)
}

func serveObservation(w http.ResponseWriter, r *http.Request) {
	_ = r.PathValue("id")
	at := time.Now().UTC().Truncate(5 * time.Minute).Format(time.RFC3339)
	temp := -8.0 + rand.Float64()*4
	wind := 10.0 + rand.Float64()*15
	writeJSON(w, fmt.Sprintf(`{
  "properties": {
    "timestamp": %q,
    "temperature": {"value": %.1f},
    "windSpeed": {"value": %.1f},
    "windDirection": {"value": 310},
    "relativeHumidity": {"value": 82.5},
    "textDescription": "Light Snow"
  }
}`, at, temp, wind))
}

func servePoints(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	writeJSON(w, fmt.Sprintf(`{
  "properties": {
    "gridId": "BTV",
    "gridX": 90,
    "gridY": 60,
    "forecast": "%s://%s/gridpoints/BTV/90,60/forecast"
  }
}`, scheme, r.Host))
}

func serveForecast(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, `{
  "properties": {
    "periods": [
      {"shortForecast": "Snow Showers", "temperature": 28, "temperatureUnit": "F"}
    ]
  }
}`)
}

func serveGauges(w http.ResponseWriter, r *http.Request) {
	sites := strings.Split(r.URL.Query().Get("sites"), ",")
	if len(sites) == 0 || sites[0] == "" {
		sites = []string{"04290500"}
	}
	at := time.Now().UTC().Truncate(15 * time.Minute).Format(time.RFC3339)

	var series []string
	for _, site := range sites {
		height := 3.0 + rand.Float64()
		discharge := 400 + rand.IntN(300)
		series = append(series, fmt.Sprintf(`
      {
        "sourceInfo": {"siteName": "SIMULATED RIVER AT %[1]s", "siteCode": [{"value": %[1]q}]},
        "variable": {"variableCode": [{"value": "00065"}]},
        "values": [{"value": [{"value": "%.2[2]f", "dateTime": %[4]q}]}]
      },
      {
        "sourceInfo": {"siteName": "SIMULATED RIVER AT %[1]s", "siteCode": [{"value": %[1]q}]},
        "variable": {"variableCode": [{"value": "00060"}]},
        "values": [{"value": [{"value": "%[3]d", "dateTime": %[4]q}]}]
      }`, site, height, discharge, at))
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"value": {"timeSeries": [%s]}}`, strings.Join(series, ","))
}

func serveTraffic(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC()
	events := []string{fmt.Sprintf(`
  <event id="sim-511-1">
    <type>Incident</type>
    <severity>Major</severity>
    <description>Tractor trailer off the road</description>
    <roadName>I-89</roadName>
    <direction>NB</direction>
    <city>Waterbury</city>
    <latitude>44.3378</latitude>
    <longitude>-72.7562</longitude>
    <reported>%s</reported>
    <updated>%d</updated>
  </event>`, now.Add(-45*time.Minute).Format(time.RFC3339), now.Unix())}

	// Every other snapshot omits the second event so resolution fires.
	if requests.Add(1)%2 == 1 {
		events = append(events, `
  <event id="sim-511-2">
    <type>Roadwork</type>
    <severity>Minor</severity>
    <roadName>VT-100</roadName>
    <city>Stowe</city>
    <latitude>44.4654</latitude>
    <longitude>-72.6874</longitude>
  </event>`)
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<events>%s
</events>`, strings.Join(events, ""))
}

func serveSki(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<html><body>
<h1>Simulated Conditions Report</h1>
<table class="conditions">
  <tr><th>Area</th><th>Trails</th><th>Lifts</th><th>Base</th><th>Surface</th></tr>
  <tr><td>Stowe</td><td>98/116</td><td>10/12</td><td>34"</td><td>Packed Powder</td></tr>
  <tr><td>Killington</td><td>140/155</td><td>18/22</td><td>40"</td><td>Powder</td></tr>
  <tr><td>Jay Peak</td><td>81/81</td><td>9/9</td><td>52"</td><td>Powder</td></tr>
</table>
</body></html>`))
}
