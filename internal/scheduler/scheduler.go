// Package scheduler drives the collectors on their cadences from a single
// internal ticker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mossglen/vtwx-ingest/internal/collector"
	"github.com/mossglen/vtwx-ingest/internal/observability"
	"github.com/mossglen/vtwx-ingest/internal/retry"
)

const (
	tickInterval = time.Second
	warmupDelay  = 2 * time.Second
)

// Entry binds a collector to its cadence.
type Entry struct {
	Name      string
	Collector collector.Collector
	Interval  time.Duration
}

// Status is the last known outcome for one collector. LastResult is nil until
// the first successful run and after any failed one.
type Status struct {
	LastRun    time.Time `json:"last_run"`
	LastResult *int      `json:"last_result"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run"`
}

// HealthSnapshot is the /statusz payload.
type HealthSnapshot struct {
	Enabled    bool              `json:"enabled"`
	Collectors map[string]Status `json:"collectors"`
}

// Scheduler runs each entry's collector on its interval. One ticker drives
// everything; each due collector runs in its own goroutine through the retry
// wrapper and a panic guard, so no single run can take the scheduler down.
type Scheduler struct {
	entries []Entry
	enabled bool
	runner  *retry.Runner
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	status   map[string]*Status
	inFlight map[string]bool

	ready    atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler over the given entries. enabled records whether a
// persistence backend is configured; it is reported on /statusz, collectors
// no-op without one.
func New(entries []Entry, enabled bool, runner *retry.Runner, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		entries:  entries,
		enabled:  enabled,
		runner:   runner,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		status:   make(map[string]*Status, len(entries)),
		inFlight: make(map[string]bool, len(entries)),
	}
}

// Start launches the tick loop. Every collector gets one warm-up run shortly
// after start; after that each follows its own interval.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	warmup := s.clock.Now().Add(warmupDelay)
	s.mu.Lock()
	for _, e := range s.entries {
		s.status[e.Name] = &Status{NextRun: warmup}
	}
	s.mu.Unlock()

	s.metrics.SchedulerUp.Set(1)
	s.logger.Info("scheduler started", "collectors", len(s.entries))
	go s.loop(runCtx)
}

// Stop halts the ticker and waits for in-flight runs. Safe to call more than
// once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.loopDone != nil {
			<-s.loopDone
		}
		s.wg.Wait()

		s.mu.Lock()
		s.inFlight = make(map[string]bool, len(s.entries))
		s.mu.Unlock()

		s.metrics.SchedulerUp.Set(0)
		s.logger.Info("scheduler stopped")
	})
}

// CheckReadiness returns nil once any collector has completed a successful
// run.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no collector has completed a run yet")
	}
	return nil
}

// Snapshot returns a copy of every collector's status.
func (s *Scheduler) Snapshot() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Status, len(s.status))
	for name, st := range s.status {
		out[name] = *st
	}
	return out
}

// Health returns the /statusz payload.
func (s *Scheduler) Health() HealthSnapshot {
	return HealthSnapshot{
		Enabled:    s.enabled,
		Collectors: s.Snapshot(),
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue starts a run for every entry whose NextRun has passed. An entry
// still in flight from a previous tick is skipped; its next run is scheduled
// from whenever that run finishes.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()
	for _, e := range s.entries {
		s.mu.Lock()
		st := s.status[e.Name]
		due := !now.Before(st.NextRun) && !s.inFlight[e.Name]
		if due {
			s.inFlight[e.Name] = true
		}
		s.mu.Unlock()

		if !due {
			continue
		}
		s.wg.Add(1)
		go s.runOne(ctx, e)
	}
}

func (s *Scheduler) runOne(ctx context.Context, e Entry) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("collector panicked", "collector", e.Name, "panic", r)
			s.metrics.CollectorRuns.WithLabelValues(e.Name, "failed").Inc()
			s.finish(e, nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	n, err := s.runner.Do(ctx, e.Name, e.Collector.Run)
	if err != nil {
		s.metrics.CollectorRuns.WithLabelValues(e.Name, "failed").Inc()
		s.finish(e, nil, err.Error())
		return
	}

	s.metrics.CollectorRuns.WithLabelValues(e.Name, "ok").Inc()
	s.metrics.ItemsProcessed.WithLabelValues(e.Name).Add(float64(n))
	s.ready.Store(true)
	s.finish(e, &n, "")
}

func (s *Scheduler) finish(e Entry, result *int, errMsg string) {
	now := s.clock.Now()
	s.mu.Lock()
	st := s.status[e.Name]
	st.LastRun = now
	st.LastResult = result
	st.LastError = errMsg
	st.NextRun = now.Add(e.Interval)
	s.inFlight[e.Name] = false
	s.mu.Unlock()
}
