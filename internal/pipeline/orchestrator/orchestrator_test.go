package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/memory"
	"github.com/vietddude/triage/internal/pipeline/analyzer"
	"github.com/vietddude/triage/internal/pipeline/history"
	"github.com/vietddude/triage/internal/pipeline/retry"
)

// =============================================================================
// Mocks
// =============================================================================

type mockAnalyzer struct {
	mu          sync.Mutex
	analyzeErr  error
	updateErr   error
	analyzed    int
	response    *domain.AnalysisResponse
	updateCalls int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, events []domain.ErrorEvent, hctx *domain.HistoricalContext) (*domain.AnalysisResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzed++
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	if m.response != nil {
		return m.response, nil
	}
	return &domain.AnalysisResponse{}, nil
}

func (m *mockAnalyzer) ProcessResults(events []domain.ErrorEvent, response *domain.AnalysisResponse) []domain.ErrorEvent {
	out := make([]domain.ErrorEvent, len(events))
	copy(out, events)
	return out
}

func (m *mockAnalyzer) UpdateStore(ctx context.Context, events []domain.ErrorEvent, partitionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	return m.updateErr
}

func (m *mockAnalyzer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzed
}

type nilBuilder struct{}

func (nilBuilder) Build(ctx context.Context, asOf time.Time) *domain.HistoricalContext {
	return nil
}

type mockRescheduler struct {
	mu    sync.Mutex
	day   time.Time
	delay time.Duration
	calls int
}

func (m *mockRescheduler) ScheduleRetry(day time.Time, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.day = day
	m.delay = delay
}

func unanalyzed(id string, ts time.Time) domain.ErrorEvent {
	return domain.ErrorEvent{ID: id, Timestamp: ts, Source: "api", Message: "boom"}
}

// =============================================================================
// Skip paths
// =============================================================================

func TestRunFor_SkipsMissingPartition(t *testing.T) {
	mock := &mockAnalyzer{}
	o := New(memory.NewStore(), nilBuilder{}, mock, nil, 0, nil)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if err := o.RunFor(context.Background(), day); err != nil {
		t.Fatalf("missing partition must be a no-op, got %v", err)
	}
	if mock.calls() != 0 {
		t.Error("analyzer must not be invoked for a missing partition")
	}
	if report := o.LastRun(); report.State != StateDone {
		t.Errorf("expected done state, got %s", report.State)
	}
}

func TestRunFor_SkipsFullyAnalyzedPartition(t *testing.T) {
	store := memory.NewStore()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	analyzedAt := day.Add(26 * time.Hour)
	e := unanalyzed("e1", day.Add(time.Hour))
	e.Severity = domain.SeverityLow
	e.Priority = domain.PriorityLow
	e.AIReasoning = "x"
	e.AnalyzedAt = &analyzedAt
	e.IsAnalyzed = true
	if err := store.Save(context.Background(), storage.PartitionKey(day), []domain.ErrorEvent{e}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	mock := &mockAnalyzer{}
	o := New(store, nilBuilder{}, mock, nil, 0, nil)

	if err := o.RunFor(context.Background(), day); err != nil {
		t.Fatalf("fully analyzed partition must be a no-op, got %v", err)
	}
	if mock.calls() != 0 {
		t.Error("analyzer must not be invoked when nothing is unanalyzed")
	}
}

// =============================================================================
// Failure paths
// =============================================================================

func TestRunFor_AnalysisFailureReschedulesAndPropagates(t *testing.T) {
	store := memory.NewStore()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if err := store.Save(context.Background(), storage.PartitionKey(day),
		[]domain.ErrorEvent{unanalyzed("e1", day.Add(time.Hour))}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	boom := errors.New("endpoint unreachable")
	mock := &mockAnalyzer{analyzeErr: boom}
	resched := &mockRescheduler{}
	o := New(store, nilBuilder{}, mock, resched, 30*time.Minute, nil)

	err := o.RunFor(context.Background(), day)
	if !errors.Is(err, boom) {
		t.Fatalf("caller must observe the failure synchronously, got %v", err)
	}
	if resched.calls != 1 {
		t.Fatalf("expected one reschedule, got %d", resched.calls)
	}
	if resched.delay != 30*time.Minute {
		t.Errorf("expected 30m retry delay, got %v", resched.delay)
	}
	if !resched.day.Equal(day) {
		t.Errorf("expected reschedule for %v, got %v", day, resched.day)
	}
	if report := o.LastRun(); report.State != StateFailed || report.Error == "" {
		t.Errorf("expected failed report, got %+v", report)
	}

	// Events must remain unanalyzed and safe to retry.
	events, _ := store.Load(context.Background(), storage.PartitionKey(day))
	if len(events) != 1 || events[0].IsAnalyzed {
		t.Errorf("failed run must leave events unanalyzed: %+v", events)
	}
}

func TestRunFor_PersistFailurePropagatesWithoutReschedule(t *testing.T) {
	store := memory.NewStore()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if err := store.Save(context.Background(), storage.PartitionKey(day),
		[]domain.ErrorEvent{unanalyzed("e1", day.Add(time.Hour))}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	writeErr := errors.New("disk full")
	mock := &mockAnalyzer{updateErr: writeErr}
	resched := &mockRescheduler{}
	o := New(store, nilBuilder{}, mock, resched, time.Minute, nil)

	err := o.RunFor(context.Background(), day)
	if !errors.Is(err, writeErr) {
		t.Fatalf("persistence failure must propagate, got %v", err)
	}
	if resched.calls != 0 {
		t.Error("persistence failures are not rescheduled by the orchestrator")
	}
}

// =============================================================================
// End-to-end scenario
// =============================================================================

// Two unanalyzed events, the endpoint classifies only the first. After the
// run the first is analyzed, the second is untouched, and the partition is
// sorted by timestamp.
func TestRunFor_PartialResultScenario(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// Seeded out of order on purpose.
	e1 := unanalyzed("e1", day.Add(9*time.Hour))
	e2 := unanalyzed("e2", day.Add(3*time.Hour))
	if err := store.Save(ctx, "logs-2024-01-15", []domain.ErrorEvent{e1, e2}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.AnalysisResponse{
			Results: []domain.AnalysisResult{{
				LogID:           "e1",
				Severity:        domain.SeverityHigh,
				Priority:        domain.PriorityHigh,
				Reasoning:       "x",
				ConfidenceScore: 0.9,
			}},
		})
	}))
	defer server.Close()

	client := analyzer.NewClient(analyzer.Config{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, retry.NewExecutor(1, time.Millisecond, nil), store, nil)

	builder := history.NewBuilder(store, 7, nil)
	o := New(store, builder, client, nil, time.Minute, nil)

	if err := o.RunFor(ctx, day); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, err := store.Load(ctx, "logs-2024-01-15")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both events in the partition, got %d", len(got))
	}

	// Sorted by timestamp: e2 (03:00) before e1 (09:00).
	if got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("expected timestamp order e2, e1; got %s, %s", got[0].ID, got[1].ID)
	}

	first := got[1]
	if !first.IsAnalyzed || first.AnalyzedAt == nil {
		t.Error("e1 should be analyzed")
	}
	if first.Severity != domain.SeverityHigh || first.Priority != domain.PriorityHigh {
		t.Errorf("unexpected e1 classification: %s/%s", first.Severity, first.Priority)
	}
	if first.AIReasoning != "x" {
		t.Errorf("unexpected e1 reasoning: %q", first.AIReasoning)
	}

	second := got[0]
	if second.IsAnalyzed || second.AnalyzedAt != nil {
		t.Error("e2 has no result and must remain unanalyzed")
	}

	if report := o.LastRun(); report.State != StateDone || report.Submitted != 2 {
		t.Errorf("unexpected run report: %+v", report)
	}
}
