package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"calseed/internal/generator"
)

// CycleRunner executes one generation cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (generator.CycleResult, error)
}

// Worker fires generation cycles at a fixed interval. Cycles never overlap:
// the worker sleeps for the configured interval after each cycle completes
// and reacts to cancellation during that sleep.
type Worker struct {
	interval time.Duration
	runner   CycleRunner
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a worker firing every interval.
func New(interval time.Duration, runner CycleRunner, logger zerolog.Logger) *Worker {
	return &Worker{
		interval: interval,
		runner:   runner,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the first cycle immediately and then loops until the context is
// cancelled or Stop is called. A failed cycle is logged; the worker carries
// on to the next one.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.Info().Dur("interval", w.interval).Msg("generation worker started")

	for {
		w.runCycle(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("generation worker stopped by context")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("generation worker stopped")
			return
		case <-time.After(w.interval):
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
	w.mu.Unlock()
}

// IsRunning reports whether the worker loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunNow forces an immediate cycle outside the regular interval.
func (w *Worker) RunNow(ctx context.Context) {
	w.logger.Info().Msg("manual generation cycle triggered")
	w.runCycle(ctx)
}

func (w *Worker) runCycle(ctx context.Context) {
	start := time.Now()
	res, err := w.runner.RunCycle(ctx)
	if err != nil {
		w.logger.Error().Err(err).Str("cycle_id", res.CycleID).Msg("generation cycle aborted")
		return
	}
	w.logger.Info().
		Str("cycle_id", res.CycleID).
		Int("users_sampled", res.UsersSampled).
		Int("created", res.Created).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("duration", time.Since(start)).
		Msg("generation cycle completed")
}
