// Package usgs fetches river gauge readings from the USGS Instantaneous
// Values service.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

const source = "usgs"

// USGS parameter codes.
const (
	paramDischarge   = "00060" // cubic feet per second
	paramGaugeHeight = "00065" // feet
	paramWaterTemp   = "00010" // degrees Celsius
)

// Client talks to waterservices.usgs.gov.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS water services client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(5, 5),
		metrics:    metrics,
		logger:     logger,
	}
}

// Readings fetches the latest instantaneous values for the given sites and
// folds the per-parameter time series into one GaugeReading per
// (site, timestamp). Malformed series entries are dropped individually.
func (c *Client) Readings(ctx context.Context, sites []string) ([]domain.GaugeReading, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.UpstreamError{Source: source, Err: err}
	}

	url := fmt.Sprintf("%s/nwis/iv/?format=json&sites=%s&parameterCd=%s&siteStatus=active",
		c.baseURL, strings.Join(sites, ","),
		strings.Join([]string{paramDischarge, paramGaugeHeight, paramWaterTemp}, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
			Err:    fmt.Errorf("GET %s: %s", url, body),
		}
	}

	var payload ivResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()

	return c.fold(payload), nil
}

// fold merges the per-parameter series into one reading per site+timestamp.
func (c *Client) fold(payload ivResponse) []domain.GaugeReading {
	type key struct {
		site string
		at   time.Time
	}
	readings := make(map[key]*domain.GaugeReading)

	for _, ts := range payload.Value.TimeSeries {
		if len(ts.SourceInfo.SiteCode) == 0 || len(ts.Variable.VariableCode) == 0 {
			c.logger.Warn("dropping time series without site or variable code")
			continue
		}
		site := ts.SourceInfo.SiteCode[0].Value
		param := ts.Variable.VariableCode[0].Value

		for _, block := range ts.Values {
			for _, v := range block.Value {
				at, err := time.Parse(time.RFC3339, v.DateTime)
				if err != nil {
					c.logger.Warn("dropping value with bad timestamp",
						"site", site, "datetime", v.DateTime)
					continue
				}
				k := key{site: site, at: at.UTC()}
				r, ok := readings[k]
				if !ok {
					r = &domain.GaugeReading{
						SiteID:     site,
						SiteName:   ts.SourceInfo.SiteName,
						ObservedAt: at.UTC(),
					}
					readings[k] = r
				}
				switch param {
				case paramDischarge:
					r.Discharge = v.Value
				case paramGaugeHeight:
					r.GaugeHeight = v.Value
				case paramWaterTemp:
					r.WaterTemp = v.Value
				}
			}
		}
	}

	out := make([]domain.GaugeReading, 0, len(readings))
	for _, r := range readings {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteID != out[j].SiteID {
			return out[i].SiteID < out[j].SiteID
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out
}

// USGS instantaneous values response types (WaterML-JSON).

type ivResponse struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	SourceInfo struct {
		SiteName string `json:"siteName"`
		SiteCode []struct {
			Value string `json:"value"`
		} `json:"siteCode"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableCode []struct {
			Value string `json:"value"`
		} `json:"variableCode"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value    string `json:"value"`
			DateTime string `json:"dateTime"`
		} `json:"value"`
	} `json:"values"`
}
