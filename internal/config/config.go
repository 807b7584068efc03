package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mossglen/vtwx-ingest/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Persistence. An empty driver disables persistence entirely; collectors
	// then degrade to 0-count no-ops.
	DBDriver string // "", "sqlite", or "postgres"
	DBDSN    string

	// Upstream feeds.
	Region          string // zone prefix and alerts area, e.g. "VT"
	NWSBaseURL      string
	NWSUserAgent    string // weather.gov requires a contact-identifying UA
	USGSBaseURL     string
	USGSSites       []string
	TrafficFeedURL  string
	SkiPageURL      string // empty disables the ski collector
	SkiAreas        []domain.SkiArea
	UpstreamTimeout time.Duration

	// Cache sizing. TTLs are fixed by the upstreams' refresh behavior and are
	// not configurable.
	GridCacheSize int
	ZoneCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	skiAreas, err := parseSkiAreas(os.Getenv("SKI_AREAS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBDriver: strings.ToLower(os.Getenv("DB_DRIVER")),
		DBDSN:    os.Getenv("DB_DSN"),

		Region:          envOrDefault("REGION", "VT"),
		NWSBaseURL:      envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent:    os.Getenv("NWS_USER_AGENT"),
		USGSBaseURL:     envOrDefault("USGS_BASE_URL", "https://waterservices.usgs.gov"),
		USGSSites:       splitList(envOrDefault("USGS_SITES", "04290500,04288000,04287000")),
		TrafficFeedURL:  os.Getenv("TRAFFIC_FEED_URL"),
		SkiPageURL:      os.Getenv("SKI_PAGE_URL"),
		SkiAreas:        skiAreas,
		UpstreamTimeout: upstreamTimeout,

		GridCacheSize: parseIntOrDefault("GRID_CACHE_SIZE", 500),
		ZoneCacheSize: parseIntOrDefault("ZONE_CACHE_SIZE", 200),
	}

	if cfg.NWSUserAgent == "" {
		return nil, errors.New("NWS_USER_AGENT is required; weather.gov rejects anonymous clients")
	}
	switch cfg.DBDriver {
	case "", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER is postgres")
	}
	if cfg.SkiPageURL != "" && len(cfg.SkiAreas) == 0 {
		return nil, errors.New("SKI_PAGE_URL is set but SKI_AREAS is empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseIntOrDefault(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseSkiAreas parses "Name:lat:lon" triples separated by commas, e.g.
// "Stowe:44.530:-72.781,Killington:43.626:-72.820".
func parseSkiAreas(s string) ([]domain.SkiArea, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var areas []domain.SkiArea
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid SKI_AREAS entry %q (want Name:lat:lon)", part)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SKI_AREAS latitude in %q", part)
		}
		lon, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SKI_AREAS longitude in %q", part)
		}
		areas = append(areas, domain.SkiArea{Name: fields[0], Lat: lat, Lon: lon})
	}
	return areas, nil
}
