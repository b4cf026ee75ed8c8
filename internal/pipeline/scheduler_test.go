package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds each cycle until release is closed.
type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *blockingRunner) RunCycle(ctx context.Context) (*CycleReport, error) {
	n := r.calls.Add(1)
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &CycleReport{Status: StatusCompleted, Listed: int(n)}, nil
}

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) RunCycle(context.Context) (*CycleReport, error) {
	n := r.calls.Add(1)
	return &CycleReport{Status: StatusCompleted, Listed: int(n)}, nil
}

func TestScheduler_DropsOverlappingTriggers(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner, time.Hour, false)

	require.True(t, s.TriggerAsync())
	<-runner.started
	assert.True(t, s.Running())

	assert.False(t, s.Trigger(context.Background()), "dropped while a cycle runs")
	assert.False(t, s.TriggerAsync())

	close(runner.release)
	s.Stop()

	assert.Equal(t, int32(1), runner.calls.Load())
	assert.False(t, s.Running())
	require.NotNil(t, s.LastReport())
	assert.Equal(t, 1, s.LastReport().Listed)

	assert.True(t, s.Trigger(context.Background()), "free again after the cycle")
	assert.Equal(t, 2, s.LastReport().Listed)
}

func TestScheduler_RunsOnStartAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	calls := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load(), "no cycles after Stop")
}

func TestScheduler_NoRunOnStart(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, false)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), runner.calls.Load())
	assert.Nil(t, s.LastReport())
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner, time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-runner.started

	cancel()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_DefaultInterval(t *testing.T) {
	assert.Equal(t, time.Hour, NewScheduler(&countingRunner{}, 0, false).Interval())
}
