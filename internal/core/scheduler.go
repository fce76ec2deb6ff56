package core

// scheduler.go runs the directory batch on a cron schedule.
//
// Specs use the standard five fields with an optional leading seconds field,
// or a descriptor such as "@hourly". The batch runs once at start, then on
// every tick. A tick that fires while the previous run is still going is
// skipped. The scheduler logs failures and keeps running; only context
// cancellation stops it.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the batch every five minutes.
const DefaultSchedule = "0 */5 * * * *"

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a cron spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Scheduler runs a BatchRunner periodically.
type Scheduler struct {
	runner *BatchRunner
	spec   string
	logger *slog.Logger
	cron   *cron.Cron

	mu   sync.RWMutex
	last *BatchResult
}

// NewScheduler creates a scheduler for runner. An empty spec means
// DefaultSchedule.
func NewScheduler(runner *BatchRunner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := ParseSchedule(spec); err != nil {
		return nil, err
	}

	cl := cronLogger{logger: logger.With("component", "scheduler")}
	return &Scheduler{
		runner: runner,
		spec:   spec,
		logger: logger,
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}, nil
}

// Run runs the batch once, then on schedule until ctx is cancelled. It waits
// for an in-flight run to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = ContextWithTrigger(ctx, TriggerSchedule)

	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule batch: %w", err)
	}

	s.logger.Info("batch scheduler started", "schedule", s.spec)
	s.runOnce(ctx)

	s.cron.Start()
	if next := s.Next(); !next.IsZero() {
		s.logger.Info("next batch run", "at", next.Format(time.RFC3339))
	}

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("batch scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, ErrBatchRunning):
		s.logger.Warn("batch run skipped", "reason", err)
		return
	case err != nil && ctx.Err() == nil:
		s.logger.Error("batch run failed", "error", err)
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
}

// Next returns the next scheduled run, or the zero time before Run starts.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastResult returns the result of the most recent completed run.
func (s *Scheduler) LastResult() (BatchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return BatchResult{}, false
	}
	return *s.last, true
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
