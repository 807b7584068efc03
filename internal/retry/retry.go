// Package retry wraps collector runs in a fixed exponential backoff ladder.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/observability"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Runner retries a collector run up to a fixed number of attempts with
// exponential backoff. It always settles: exhausted retries reduce to a zero
// count and the last attempt's error, never a panic or an unbounded loop.
type Runner struct {
	maxAttempts int
	baseDelay   time.Duration
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewRunner creates a retry runner with the default ladder of 3 attempts at
// 1s, 2s, 4s backoff.
func NewRunner(clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
	}
}

// Do runs fn until it succeeds or the attempt budget is spent. The backoff
// delay is baseDelay·2^attempt and is slept after every failed attempt, the
// last one included, so a failing run occupies its slot for the full ladder.
// Returns fn's count on success, or 0 and the last attempt's error after
// exhaustion or context cancellation.
func (r *Runner) Do(ctx context.Context, name string, fn func(context.Context) (int, error)) (int, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		n, err := fn(ctx)
		if err == nil {
			return n, nil
		}
		lastErr = err

		if attempt > 0 {
			r.metrics.RetryAttempts.WithLabelValues(name).Inc()
		}
		r.logger.Warn("run attempt failed",
			"collector", name,
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"error", err)

		delay := r.baseDelay << attempt
		select {
		case <-ctx.Done():
			r.logger.Warn("run abandoned", "collector", name, "error", ctx.Err())
			return 0, lastErr
		case <-r.clock.After(delay):
		}
	}

	r.logger.Error("run failed after all attempts",
		"collector", name,
		"attempts", r.maxAttempts,
		"error", lastErr)
	return 0, lastErr
}
