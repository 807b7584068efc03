// Package ski scrapes a ski-conditions HTML page. It is a deliberately
// simpler sibling of the weather adapters: one table, one row per area.
package ski

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

const source = "ski"

// Scraper fetches and parses the conditions page. Expected markup is a table
// whose rows carry area, trails, lifts, base depth, and surface cells; rows
// with fewer cells are skipped.
type Scraper struct {
	pageURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewScraper creates a conditions page scraper.
func NewScraper(pageURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Scraper {
	return &Scraper{
		pageURL:    pageURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Reports fetches the page and returns one report per parseable row.
// ReportedAt is left zero; the collector stamps it.
func (s *Scraper) Reports(ctx context.Context) ([]domain.SkiReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	s.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{
			Source: source,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("GET %s", s.pageURL),
		}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		s.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("parse page: %w", err)}
	}
	s.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()

	var reports []domain.SkiReport
	for _, row := range tableRows(doc) {
		cells := cellTexts(row)
		// Header rows use <th> and produce no <td> cells.
		if len(cells) < 5 || cells[0] == "" {
			continue
		}
		reports = append(reports, domain.SkiReport{
			Area:       cells[0],
			TrailsOpen: cells[1],
			LiftsOpen:  cells[2],
			BaseDepth:  cells[3],
			Surface:    cells[4],
		})
	}
	return reports, nil
}

func tableRows(doc *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

func cellTexts(row *html.Node) []string {
	var cells []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "td" {
			cells = append(cells, strings.TrimSpace(text(c)))
		}
	}
	return cells
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
