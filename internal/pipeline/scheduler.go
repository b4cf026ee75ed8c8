package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/rollstats/pkg/logger"
)

// Runner executes one sync cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// Scheduler runs cycles on a fixed interval, at most one at a time.
// Triggers that arrive while a cycle is running are dropped.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	sem        *semaphore.Weighted
	log        zerolog.Logger

	mu      sync.RWMutex
	last    *CycleReport
	running bool
	ctx     context.Context

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. runOnStart triggers a cycle as soon as Start is called.
func NewScheduler(runner Runner, interval time.Duration, runOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		sem:        semaphore.NewWeighted(1),
		log:        logger.Component("scheduler"),
		ctx:        context.Background(),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the schedule in the background. Cycles use ctx; cancelling it
// abandons the in-flight cycle and ends the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info().Dur("interval", s.interval).Bool("run_on_start", s.runOnStart).Msg("scheduler started")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.runOnStart {
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger runs a cycle now and waits for it. It returns false without running
// when another cycle is in flight.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.sem.TryAcquire(1) {
		s.log.Warn().Msg("sync already in progress, skipping trigger")
		return false
	}
	defer s.sem.Release(1)
	s.run(ctx)
	return true
}

// TriggerAsync starts a cycle in the background using the scheduler's context.
// It returns false when another cycle is in flight.
func (s *Scheduler) TriggerAsync() bool {
	if !s.sem.TryAcquire(1) {
		s.log.Warn().Msg("sync already in progress, skipping trigger")
		return false
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.run(ctx)
	}()
	return true
}

func (s *Scheduler) run(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	report, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sync cycle failed")
	}
	if report != nil {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastReport returns the most recent finished cycle, or nil.
func (s *Scheduler) LastReport() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Stop ends the schedule and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
