// Package scheduler triggers sync cycles on an interval, on new mail and on demand,
// never running two cycles at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrCycleInProgress is returned when a trigger arrives while a cycle is running.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	// ErrStopped is returned when a trigger arrives after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// CycleRunner runs one sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *models.CycleResult
}

// Watcher is a long-running trigger source such as an IMAP IDLE watcher.
type Watcher interface {
	Run(ctx context.Context)
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Started      bool                `json:"started"`
	CycleRunning bool                `json:"cycle_running"`
	Interval     string              `json:"interval"`
	LastRun      *time.Time          `json:"last_run,omitempty"`
	NextRun      *time.Time          `json:"next_run,omitempty"`
	LastResult   *models.CycleResult `json:"last_result,omitempty"`
}

// Scheduler coalesces cycle triggers.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger

	cycle sync.Mutex

	mu         sync.RWMutex
	started    bool
	closed     bool
	running    bool
	entry      cron.EntryID
	lastRun    time.Time
	lastResult *models.CycleResult
	stop       context.CancelFunc
	watchers   sync.WaitGroup
}

// New creates a Scheduler running cycles every interval once started.
func New(runner CycleRunner, interval time.Duration, loc *time.Location, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	if loc == nil {
		loc = time.UTC
	}

	cronLogger := cron.PrintfLogger(&logger)
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		logger: logger,
	}
}

// Start registers the interval job and starts the watchers. Cycles started by the schedule
// or a watcher use ctx.
func (s *Scheduler) Start(ctx context.Context, watchers ...Watcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStopped
	}
	if s.started {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	schedule := fmt.Sprintf("@every %s", s.interval)
	entry, err := s.cron.AddFunc(schedule, func() { s.trigger(ctx, "schedule") })
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule sync job %q: %w", schedule, err)
	}

	s.entry = entry
	s.stop = cancel
	s.started = true
	s.cron.Start()

	for _, w := range watchers {
		s.watchers.Add(1)
		go func(w Watcher) {
			defer s.watchers.Done()
			w.Run(ctx)
		}(w)
	}

	s.logger.Info().Dur("interval", s.interval).Int("watchers", len(watchers)).Msg("Scheduler started")
	return nil
}

// Stop stops the schedule and the watchers and waits for any running cycle to finish,
// whichever trigger started it. Later triggers fail with ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.closed = true
	cancel := s.stop
	s.mu.Unlock()

	if started {
		cancel()
		<-s.cron.Stop().Done()
		s.watchers.Wait()
	}

	// Wait out the running cycle.
	s.cycle.Lock()
	s.cycle.Unlock()

	if started {
		s.logger.Info().Msg("Scheduler stopped")
	}
}

// TriggerNow runs a cycle unless one is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) (*models.CycleResult, error) {
	if !s.cycle.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.running = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	result := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.running = false
	s.lastResult = result
	s.mu.Unlock()

	return result, nil
}

// OnNewMail is the callback for watchers. It runs the cycle in the background.
func (s *Scheduler) OnNewMail(ctx context.Context) {
	go s.trigger(ctx, "new_mail")
}

func (s *Scheduler) trigger(ctx context.Context, source string) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.TriggerNow(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Info().Str("source", source).Msg("Sync cycle already running, trigger coalesced")
	case errors.Is(err, ErrStopped):
		s.logger.Debug().Str("source", source).Msg("Scheduler stopped, trigger dropped")
	}
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Started:      s.started,
		CycleRunning: s.running,
		Interval:     s.interval.String(),
		LastResult:   s.lastResult,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.started {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}
