package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/triage/internal/core/config"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/file"
	"github.com/vietddude/triage/internal/infra/storage/memory"
	"github.com/vietddude/triage/internal/pipeline/analyzer"
	"github.com/vietddude/triage/internal/pipeline/history"
	"github.com/vietddude/triage/internal/pipeline/orchestrator"
	"github.com/vietddude/triage/internal/pipeline/retry"
	"github.com/vietddude/triage/internal/pipeline/scheduler"
)

// Triage is the main application struct that wires the pipeline together and
// manages its lifecycle.
type Triage struct {
	cfg    *config.AppConfig
	store  storage.EventRepository
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Scheduler
	server *Server
	log    *slog.Logger
}

// Options tweak wiring for one-off invocations.
type Options struct {
	// DryRun swaps the file store for an in-memory one; nothing touches disk.
	DryRun bool
}

// NewTriage creates the application with all dependencies initialized.
func NewTriage(cfg *config.AppConfig, opts Options) (*Triage, error) {
	log := slog.Default()

	var store storage.EventRepository
	if opts.DryRun {
		store = memory.NewStore()
		log.Info("Using in-memory storage (dry run)")
	} else {
		store = file.NewStore(cfg.Storage.BasePath, log)
		log.Info("Using file storage", "path", cfg.Storage.BasePath)
	}

	executor := retry.NewExecutor(cfg.Analysis.MaxRetries, cfg.Analysis.BaseDelay.Std(), log)
	client := analyzer.NewClient(analyzer.Config{
		BaseURL: cfg.Analysis.BaseURL,
		APIKey:  cfg.Analysis.APIKey,
		Timeout: cfg.Analysis.Timeout.Std(),
	}, executor, store, log)

	builder := history.NewBuilder(store, cfg.Analysis.ContextDays, log)

	orch := orchestrator.New(store, builder, client, nil,
		cfg.Scheduler.RetryDelay.Std(), log)

	sched, err := scheduler.New(orch, cfg.Scheduler.RunAt, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}
	orch.SetRescheduler(sched)

	return &Triage{
		cfg:    cfg,
		store:  store,
		orch:   orch,
		sched:  sched,
		server: NewServer(orch, cfg.Server.Port),
		log:    log,
	}, nil
}

// Store exposes the event repository for CLI commands.
func (t *Triage) Store() storage.EventRepository {
	return t.store
}

// RunOnce executes a single analysis run for the given day.
func (t *Triage) RunOnce(ctx context.Context, day time.Time) error {
	return t.orch.RunFor(ctx, day)
}

// Start launches the daily scheduler and the health/metrics server.
func (t *Triage) Start(ctx context.Context) error {
	if err := t.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		if err := t.server.Start(); err != nil && err != http.ErrServerClosed {
			t.log.Error("Health server stopped", "error", err)
		}
	}()

	t.log.Info("Triage started",
		"run_at", t.cfg.Scheduler.RunAt, "port", t.cfg.Server.Port)
	return nil
}

// Stop shuts everything down gracefully.
func (t *Triage) Stop(ctx context.Context) error {
	t.sched.Stop()
	if err := t.server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	t.log.Info("Triage stopped")
	return nil
}
