// Package traffic fetches active incidents from a state 511-style XML event
// feed.
package traffic

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

const source = "traffic"

// Client fetches the 511 event feed. The feed lists only currently active
// events; an id missing from a snapshot means the incident has cleared.
type Client struct {
	feedURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a 511 feed client.
func NewClient(feedURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(2, 2),
		metrics:    metrics,
		logger:     logger,
	}
}

// Incidents fetches the current snapshot of active incidents. Events without
// an id are dropped individually; the snapshot survives one bad record.
func (c *Client) Incidents(ctx context.Context) ([]domain.Incident, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.UpstreamError{Source: source, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.UpstreamError{
			Source: source,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("GET %s: %s", c.feedURL, body),
		}
	}

	var feed eventFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode feed: %w", err)}
	}
	c.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()

	incidents := make([]domain.Incident, 0, len(feed.Events))
	for _, e := range feed.Events {
		if e.ID == "" {
			c.logger.Warn("dropping event without id", "type", e.Type)
			continue
		}
		incidents = append(incidents, domain.Incident{
			SourceID:    e.ID,
			Type:        e.Type,
			Severity:    e.Severity,
			Description: e.Description,
			RoadName:    e.RoadName,
			Direction:   e.Direction,
			City:        e.City,
			Lat:         parseCoord(e.Latitude),
			Lon:         parseCoord(e.Longitude),
			Reported:    parseEventTime(e.Reported),
			Updated:     parseEventTime(e.Updated),
		})
	}
	return incidents, nil
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseEventTime accepts RFC3339 or unix seconds; the feed has emitted both.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// 511 feed types.

type eventFeed struct {
	XMLName xml.Name `xml:"events"`
	Events  []event  `xml:"event"`
}

type event struct {
	ID          string `xml:"id,attr"`
	Type        string `xml:"type"`
	Severity    string `xml:"severity"`
	Description string `xml:"description"`
	RoadName    string `xml:"roadName"`
	Direction   string `xml:"direction"`
	City        string `xml:"city"`
	Latitude    string `xml:"latitude"`
	Longitude   string `xml:"longitude"`
	Reported    string `xml:"reported"`
	Updated     string `xml:"updated"`
}
