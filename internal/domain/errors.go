package domain

import "fmt"

// UpstreamError marks a whole-batch upstream failure: a transport error or a
// non-2xx response from a feed. The retry wrapper retries these; per-record
// parse failures are never wrapped in it.
type UpstreamError struct {
	Source string // "nws", "usgs", "traffic", "ski"
	Status int    // HTTP status, 0 for transport failures
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s upstream: status %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("%s upstream: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
