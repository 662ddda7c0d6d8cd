package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"calseed/internal/generator"
)

type countingRunner struct {
	runs int32
	err  error
}

func (r *countingRunner) RunCycle(context.Context) (generator.CycleResult, error) {
	atomic.AddInt32(&r.runs, 1)
	return generator.CycleResult{CycleID: "c1"}, r.err
}

func TestRunNow(t *testing.T) {
	runner := &countingRunner{}
	w := New(time.Hour, runner, zerolog.Nop())

	w.RunNow(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.runs))
	assert.False(t, w.IsRunning())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	runner := &countingRunner{}
	w := New(time.Hour, runner, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	// The first cycle fires before the first interval elapses.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.runs) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, w.IsRunning())

	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.IsRunning())
}

func TestStartStopsOnContextCancel(t *testing.T) {
	runner := &countingRunner{}
	w := New(time.Hour, runner, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not react to cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.runs))
}

func TestFailedCycleDoesNotStopWorker(t *testing.T) {
	runner := &countingRunner{err: errors.New("backend unavailable")}
	w := New(20*time.Millisecond, runner, zerolog.Nop())

	go w.Start(context.Background())
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.runs) >= 2
	}, time.Second, 10*time.Millisecond)
}
