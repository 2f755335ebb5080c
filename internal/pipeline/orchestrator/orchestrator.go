package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/pipeline/metrics"
)

// State tracks where a run is in the pipeline.
type State string

const (
	StateIdle            State = "idle"
	StateCollectingLogs  State = "collecting_logs"
	StateBuildingContext State = "building_context"
	StateAnalyzing       State = "analyzing"
	StatePersisting      State = "persisting"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Analyzer is the classification client surface the orchestrator drives.
type Analyzer interface {
	Analyze(ctx context.Context, events []domain.ErrorEvent, hctx *domain.HistoricalContext) (*domain.AnalysisResponse, error)
	ProcessResults(originalEvents []domain.ErrorEvent, response *domain.AnalysisResponse) []domain.ErrorEvent
	UpdateStore(ctx context.Context, analyzedEvents []domain.ErrorEvent, partitionKey string) error
}

// ContextBuilder supplies historical context; nil results are valid.
type ContextBuilder interface {
	Build(ctx context.Context, asOf time.Time) *domain.HistoricalContext
}

// Rescheduler is an optional capability for re-running a failed day later.
// The default is a no-op so the core never hard-wires a job scheduler.
type Rescheduler interface {
	ScheduleRetry(day time.Time, delay time.Duration)
}

type noopRescheduler struct{}

func (noopRescheduler) ScheduleRetry(time.Time, time.Duration) {}

// RunReport describes the most recent run, for health reporting.
type RunReport struct {
	Day        string    `json:"day"`
	State      State     `json:"state"`
	Submitted  int       `json:"submitted"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// Orchestrator runs the daily analysis pipeline: load yesterday's unanalyzed
// events, build context, call the analyzer, persist the merge. Designed for
// one active run at a time (single writer per partition).
type Orchestrator struct {
	store       storage.EventRepository
	builder     ContextBuilder
	analyzer    Analyzer
	rescheduler Rescheduler
	retryDelay  time.Duration
	log         *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	lastRun RunReport
}

// New creates an orchestrator. rescheduler may be nil.
func New(store storage.EventRepository, builder ContextBuilder, analyzer Analyzer, rescheduler Rescheduler, retryDelay time.Duration, log *slog.Logger) *Orchestrator {
	if rescheduler == nil {
		rescheduler = noopRescheduler{}
	}
	if retryDelay == 0 {
		retryDelay = 30 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:       store,
		builder:     builder,
		analyzer:    analyzer,
		rescheduler: rescheduler,
		retryDelay:  retryDelay,
		log:         log,
		now:         time.Now,
	}
}

// SetRescheduler installs the delayed-retry capability after construction.
// The scheduler both drives the orchestrator and serves as its rescheduler,
// so one of the two has to be wired late.
func (o *Orchestrator) SetRescheduler(r Rescheduler) {
	if r != nil {
		o.rescheduler = r
	}
}

// RunDaily analyzes yesterday's partition.
func (o *Orchestrator) RunDaily(ctx context.Context) error {
	return o.RunFor(ctx, o.now().AddDate(0, 0, -1))
}

// RunFor analyzes the partition for the given calendar day.
func (o *Orchestrator) RunFor(ctx context.Context, day time.Time) error {
	key := storage.PartitionKey(day)
	report := RunReport{Day: key, State: StateIdle, StartedAt: o.now()}
	defer func() {
		report.FinishedAt = o.now()
		o.mu.Lock()
		o.lastRun = report
		o.mu.Unlock()
	}()

	fail := func(state State, err error) error {
		report.State = StateFailed
		report.Error = err.Error()
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		o.log.Error("Analysis run failed", "partition", key, "state", state, "error", err)
		return err
	}

	report.State = StateCollectingLogs
	exists, err := o.store.Exists(ctx, key)
	if err != nil {
		return fail(StateCollectingLogs, fmt.Errorf("check partition %s: %w", key, err))
	}
	if !exists {
		report.State = StateDone
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		o.log.Info("Analysis run skipped, no logs", "partition", key)
		return nil
	}

	events, err := o.store.Load(ctx, key)
	if err != nil {
		return fail(StateCollectingLogs, fmt.Errorf("load partition %s: %w", key, err))
	}

	pending := make([]domain.ErrorEvent, 0, len(events))
	for _, e := range events {
		if !e.IsAnalyzed {
			pending = append(pending, e)
		}
	}
	report.Submitted = len(pending)
	if len(pending) == 0 {
		report.State = StateDone
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		o.log.Info("Analysis run skipped, nothing unanalyzed",
			"partition", key, "total", len(events))
		return nil
	}

	// Context failures never abort the run; a nil context is attached as-is.
	report.State = StateBuildingContext
	hctx := o.builder.Build(ctx, day)
	if hctx == nil {
		o.log.Info("No historical context available", "partition", key)
	}

	report.State = StateAnalyzing
	o.log.Info("Submitting events for analysis", "partition", key, "count", len(pending))
	response, err := o.analyzer.Analyze(ctx, pending, hctx)
	if err != nil {
		o.rescheduler.ScheduleRetry(day, o.retryDelay)
		return fail(StateAnalyzing, fmt.Errorf("analyze partition %s: %w", key, err))
	}

	report.State = StatePersisting
	processed := o.analyzer.ProcessResults(pending, response)
	if err := o.analyzer.UpdateStore(ctx, processed, key); err != nil {
		return fail(StatePersisting, fmt.Errorf("persist partition %s: %w", key, err))
	}

	report.State = StateDone
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	o.log.Info("Analysis run complete", "partition", key, "submitted", len(pending))
	return nil
}

// LastRun returns a copy of the most recent run report.
func (o *Orchestrator) LastRun() RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}
