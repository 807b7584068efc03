// Package nws is the api.weather.gov adapter: active alerts, forecast zone
// boundaries, the observation station directory, latest station observations,
// and gridpoint forecasts, plus the cache decorators that sit in front of the
// expensive lookups.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

const source = "nws"

// GridPoint is the NWS forecast grid cell for a coordinate, resolved via the
// /points endpoint. The ForecastURL is the gridpoint forecast for that cell.
type GridPoint struct {
	GridID      string
	GridX       int
	GridY       int
	ForecastURL string
}

// Client talks to the NWS API. weather.gov requires a contact-identifying
// User-Agent; anonymous clients are throttled or rejected.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWS API client.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(5, 5),
		metrics:    metrics,
		logger:     logger,
	}
}

// ActiveAlerts fetches all currently active alerts for an area (state code).
// Individual malformed features are dropped with a warning; the batch
// survives one bad record.
func (c *Client) ActiveAlerts(ctx context.Context, area string) ([]domain.RawAlert, error) {
	var fc alertCollection
	if err := c.doGet(ctx, fmt.Sprintf("%s/alerts/active?area=%s", c.baseURL, area), &fc); err != nil {
		return nil, err
	}

	alerts := make([]domain.RawAlert, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.ID == "" || f.Properties.Event == "" {
			c.logger.Warn("dropping alert feature without id or event")
			continue
		}
		alerts = append(alerts, domain.RawAlert{
			ID:            f.Properties.ID,
			Event:         f.Properties.Event,
			Severity:      f.Properties.Severity,
			Certainty:     f.Properties.Certainty,
			Urgency:       f.Properties.Urgency,
			Headline:      f.Properties.Headline,
			Description:   f.Properties.Description,
			Instruction:   f.Properties.Instruction,
			AreaDesc:      f.Properties.AreaDesc,
			AffectedZones: zoneIDs(f.Properties.AffectedZones),
			Geometry:      c.decodeGeometry(f.Properties.ID, f.Geometry),
			Effective:     f.Properties.Effective,
			Expires:       f.Properties.Expires,
		})
	}
	return alerts, nil
}

// Zone fetches a forecast zone boundary by id, e.g. "VTZ003".
func (c *Client) Zone(ctx context.Context, id string) (domain.ZoneBoundary, error) {
	var f zoneFeature
	if err := c.doGet(ctx, fmt.Sprintf("%s/zones/forecast/%s", c.baseURL, id), &f); err != nil {
		return domain.ZoneBoundary{}, err
	}
	return domain.ZoneBoundary{
		ID:       f.Properties.ID,
		Name:     f.Properties.Name,
		State:    f.Properties.State,
		Geometry: c.decodeGeometry(id, f.Geometry),
	}, nil
}

// Stations fetches the observation station directory for a state.
func (c *Client) Stations(ctx context.Context, state string) ([]domain.Station, error) {
	var fc stationCollection
	if err := c.doGet(ctx, fmt.Sprintf("%s/stations?state=%s", c.baseURL, state), &fc); err != nil {
		return nil, err
	}

	stations := make([]domain.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.StationIdentifier == "" {
			continue
		}
		s := domain.Station{
			ID:   f.Properties.StationIdentifier,
			Name: f.Properties.Name,
		}
		if len(f.Geometry.Coordinates) == 2 {
			s.Lon = f.Geometry.Coordinates[0]
			s.Lat = f.Geometry.Coordinates[1]
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// LatestObservation fetches the most recent observation for a station.
func (c *Client) LatestObservation(ctx context.Context, stationID string) (domain.Observation, error) {
	var f observationFeature
	if err := c.doGet(ctx, fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, stationID), &f); err != nil {
		return domain.Observation{}, err
	}
	if f.Properties.Timestamp.IsZero() {
		return domain.Observation{}, fmt.Errorf("station %s: observation has no timestamp", stationID)
	}
	return domain.Observation{
		StationID:   stationID,
		ObservedAt:  f.Properties.Timestamp.UTC(),
		Temperature: formatDecimal(f.Properties.Temperature.Value),
		WindSpeed:   formatDecimal(f.Properties.WindSpeed.Value),
		WindDir:     formatDecimal(f.Properties.WindDirection.Value),
		Humidity:    formatDecimal(f.Properties.RelativeHumidity.Value),
		Conditions:  f.Properties.TextDescription,
	}, nil
}

// GridPoint resolves a coordinate to its forecast grid cell.
func (c *Client) GridPoint(ctx context.Context, lat, lon float64) (GridPoint, error) {
	// The API rejects coordinates with more than four decimal places.
	var f pointsFeature
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)
	if err := c.doGet(ctx, url, &f); err != nil {
		return GridPoint{}, err
	}
	return GridPoint{
		GridID:      f.Properties.GridID,
		GridX:       f.Properties.GridX,
		GridY:       f.Properties.GridY,
		ForecastURL: f.Properties.Forecast,
	}, nil
}

// GridForecast fetches a gridpoint forecast and returns the first period as a
// short human-readable summary, e.g. "Snow Showers, 28°F".
func (c *Client) GridForecast(ctx context.Context, forecastURL string) (string, error) {
	var f forecastResponse
	if err := c.doGet(ctx, forecastURL, &f); err != nil {
		return "", err
	}
	if len(f.Properties.Periods) == 0 {
		return "", nil
	}
	p := f.Properties.Periods[0]
	return fmt.Sprintf("%s, %d°%s", p.ShortForecast, p.Temperature, p.TemperatureUnit), nil
}

func (c *Client) doGet(ctx context.Context, url string, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.UpstreamError{Source: source, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return &domain.UpstreamError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.UpstreamError{
			Source: source,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("GET %s: %s", url, body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()
	return nil
}

// decodeGeometry parses a GeoJSON geometry member, returning nil for absent
// or malformed geometry. A bad polygon costs that alert its geometry, not the
// whole batch.
func (c *Client) decodeGeometry(id string, raw json.RawMessage) geom.T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		c.logger.Warn("dropping malformed geometry", "id", id, "error", err)
		return nil
	}
	return g
}

// zoneIDs reduces zone URLs ("https://api.weather.gov/zones/forecast/VTZ003")
// to bare ids.
func zoneIDs(urls []string) []string {
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		if id := path.Base(u); id != "" && id != "." && id != "/" {
			ids = append(ids, id)
		}
	}
	return ids
}

// formatDecimal renders an optional float as a fixed-point decimal string,
// empty when the upstream reported null.
func formatDecimal(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

// NWS API response types.

type alertCollection struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	Properties alertProperties `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type alertProperties struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	Severity      string    `json:"severity"`
	Certainty     string    `json:"certainty"`
	Urgency       string    `json:"urgency"`
	Headline      string    `json:"headline"`
	Description   string    `json:"description"`
	Instruction   string    `json:"instruction"`
	AreaDesc      string    `json:"areaDesc"`
	AffectedZones []string  `json:"affectedZones"`
	Effective     time.Time `json:"effective"`
	Expires       time.Time `json:"expires"`
}

type zoneFeature struct {
	Properties struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

type stationCollection struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"features"`
}

type measurement struct {
	Value *float64 `json:"value"`
}

type observationFeature struct {
	Properties struct {
		Timestamp        time.Time   `json:"timestamp"`
		Temperature      measurement `json:"temperature"`
		WindSpeed        measurement `json:"windSpeed"`
		WindDirection    measurement `json:"windDirection"`
		RelativeHumidity measurement `json:"relativeHumidity"`
		TextDescription  string      `json:"textDescription"`
	} `json:"properties"`
}

type pointsFeature struct {
	Properties struct {
		GridID   string `json:"gridId"`
		GridX    int    `json:"gridX"`
		GridY    int    `json:"gridY"`
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			ShortForecast   string `json:"shortForecast"`
			Temperature     int    `json:"temperature"`
			TemperatureUnit string `json:"temperatureUnit"`
		} `json:"periods"`
	} `json:"properties"`
}
