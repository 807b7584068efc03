// Package collector holds the scheduled ingestion units. Each collector
// fetches one upstream snapshot and persists it through the storage layer;
// the scheduler decides when they run.
package collector

import "context"

// Collector is one scheduled ingestion unit.
//
// Run fetches a snapshot and persists it, returning the number of records
// processed. A nil store disables the collector: Run returns 0 without
// touching the upstream.
type Collector interface {
	Name() string
	Run(ctx context.Context) (int, error)
}
