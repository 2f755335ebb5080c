package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner executes an analysis run for one calendar day.
type Runner interface {
	RunFor(ctx context.Context, day time.Time) error
}

// Scheduler triggers one analysis run per day at a configured wall-clock time
// and provides the delayed-retry capability the orchestrator consumes on
// failure. One run at a time; a retry landing during a run waits its turn on
// the runner's own partition locking, not here.
type Scheduler struct {
	runner Runner
	hour   int
	minute int
	log    *slog.Logger
	now    func() time.Time

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler firing daily at runAt ("HH:MM", local time).
func New(runner Runner, runAt string, log *slog.Logger) (*Scheduler, error) {
	parsed, err := time.Parse("15:04", runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid run_at %q: %w", runAt, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		hour:   parsed.Hour(),
		minute: parsed.Minute(),
		log:    log,
		now:    time.Now,
		stop:   make(chan struct{}),
	}, nil
}

// NextRun returns the first configured run time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the daily loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next := s.NextRun(s.now())
		s.log.Info("Next analysis run scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		day := s.now().AddDate(0, 0, -1)
		if err := s.runner.RunFor(ctx, day); err != nil {
			// Already logged and rescheduled downstream; nothing else to do.
			s.log.Warn("Scheduled run failed", "day", day.Format("2006-01-02"), "error", err)
		}
	}
}

// ScheduleRetry re-runs the given day after the delay. Satisfies the
// orchestrator's Rescheduler capability.
func (s *Scheduler) ScheduleRetry(day time.Time, delay time.Duration) {
	s.log.Info("Scheduling delayed retry",
		"day", day.Format("2006-01-02"), "delay", delay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.runner.RunFor(context.Background(), day); err != nil {
			s.log.Warn("Retried run failed", "day", day.Format("2006-01-02"), "error", err)
		}
	}()
}

// Stop halts the loop and cancels pending retries. The scheduler cannot be
// restarted afterwards.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.running.Store(false)
	s.wg.Wait()
}
