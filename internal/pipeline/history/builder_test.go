package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/memory"
)

// =============================================================================
// Fixtures
// =============================================================================

func analyzedEvent(id, message string, ts time.Time, priority domain.Priority) domain.ErrorEvent {
	analyzedAt := ts.Add(time.Hour)
	return domain.ErrorEvent{
		ID:          id,
		Timestamp:   ts,
		Source:      "api",
		Message:     message,
		Severity:    domain.SeverityHigh,
		Priority:    priority,
		AIReasoning: "prior analysis",
		AnalyzedAt:  &analyzedAt,
		IsAnalyzed:  true,
	}
}

func seedDay(t *testing.T, store *memory.Store, day time.Time, events ...domain.ErrorEvent) {
	t.Helper()
	if err := store.Save(context.Background(), storage.PartitionKey(day), events); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// failingStore errors on every read.
type failingStore struct {
	storage.EventRepository
}

func (f *failingStore) LoadRange(ctx context.Context, from, to time.Time) ([]domain.ErrorEvent, error) {
	return nil, errors.New("disk gone")
}

// =============================================================================
// Build
// =============================================================================

func TestBuilder_NoHistory(t *testing.T) {
	b := NewBuilder(memory.NewStore(), 7, nil)

	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	if got := b.Build(context.Background(), asOf); got != nil {
		t.Errorf("expected nil context without history, got %+v", got)
	}
}

func TestBuilder_IgnoresUnanalyzed(t *testing.T) {
	store := memory.NewStore()
	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

	seedDay(t, store, asOf.AddDate(0, 0, -2), domain.ErrorEvent{
		ID:        "raw",
		Timestamp: asOf.AddDate(0, 0, -2).Add(10 * time.Hour),
		Message:   "unclassified",
	})

	b := NewBuilder(store, 7, nil)
	if got := b.Build(context.Background(), asOf); got != nil {
		t.Errorf("unanalyzed events must not produce a context, got %+v", got)
	}
}

func TestBuilder_WindowExcludesAsOfDay(t *testing.T) {
	store := memory.NewStore()
	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

	// On the asOf day itself: must be excluded.
	seedDay(t, store, asOf, analyzedEvent("today", "same day", asOf.Add(time.Hour), domain.PriorityLow))
	// Before the 7-day window: also excluded.
	seedDay(t, store, asOf.AddDate(0, 0, -8),
		analyzedEvent("old", "too old", asOf.AddDate(0, 0, -8).Add(time.Hour), domain.PriorityLow))
	// Inside the window.
	seedDay(t, store, asOf.AddDate(0, 0, -3),
		analyzedEvent("in", "inside window", asOf.AddDate(0, 0, -3).Add(time.Hour), domain.PriorityHigh))

	b := NewBuilder(store, 7, nil)
	got := b.Build(context.Background(), asOf)
	if got == nil {
		t.Fatal("expected a context")
	}
	if len(got.PreviousAnalysisResults) != 1 || got.PreviousAnalysisResults[0].ID != "in" {
		t.Errorf("expected only the in-window event, got %+v", got.PreviousAnalysisResults)
	}
	if !got.AnalysisDate.Equal(asOf) {
		t.Errorf("expected analysis date %v, got %v", asOf, got.AnalysisDate)
	}
}

func TestBuilder_SamplesMostRecentFirstAndCapped(t *testing.T) {
	store := memory.NewStore()
	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)

	day := asOf.AddDate(0, 0, -1)
	events := make([]domain.ErrorEvent, 0, domain.MaxContextSamples+20)
	for i := 0; i < domain.MaxContextSamples+20; i++ {
		events = append(events, analyzedEvent(
			fmt.Sprintf("e%d", i),
			"recurring failure",
			day.Add(time.Duration(i)*time.Second),
			domain.PriorityMedium,
		))
	}
	seedDay(t, store, day, events...)

	b := NewBuilder(store, 7, nil)
	got := b.Build(context.Background(), asOf)
	if got == nil {
		t.Fatal("expected a context")
	}
	if len(got.PreviousAnalysisResults) != domain.MaxContextSamples {
		t.Fatalf("expected sample capped at %d, got %d",
			domain.MaxContextSamples, len(got.PreviousAnalysisResults))
	}
	for i := 1; i < len(got.PreviousAnalysisResults); i++ {
		prev := got.PreviousAnalysisResults[i-1].Timestamp
		cur := got.PreviousAnalysisResults[i].Timestamp
		if cur.After(prev) {
			t.Fatal("sample must be most-recent-first")
		}
	}
	// The newest event must be first.
	if got.PreviousAnalysisResults[0].ID != fmt.Sprintf("e%d", domain.MaxContextSamples+19) {
		t.Errorf("expected newest event first, got %s", got.PreviousAnalysisResults[0].ID)
	}
}

func TestBuilder_StorageFailureDegradesToNil(t *testing.T) {
	b := NewBuilder(&failingStore{}, 7, nil)

	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	if got := b.Build(context.Background(), asOf); got != nil {
		t.Errorf("storage failure must degrade to no context, got %+v", got)
	}
}

// =============================================================================
// Patterns
// =============================================================================

func TestPatterns_GroupsBySignatureAndPriority(t *testing.T) {
	ts := time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC)
	events := []domain.ErrorEvent{
		analyzedEvent("a", "Request 1 failed", ts, domain.PriorityHigh),
		analyzedEvent("b", "Request 2 failed", ts.Add(time.Minute), domain.PriorityHigh),
		analyzedEvent("c", "Request 3 failed", ts.Add(2*time.Minute), domain.PriorityLow),
		analyzedEvent("d", "disk full", ts.Add(3*time.Minute), domain.PriorityHigh),
	}

	patterns := Patterns(events)
	if len(patterns) != 3 {
		t.Fatalf("expected 3 groups, got %d: %+v", len(patterns), patterns)
	}

	top := patterns[0]
	if top.Pattern != "Request {n} failed" || top.Priority != domain.PriorityHigh {
		t.Errorf("unexpected top pattern: %+v", top)
	}
	if top.Frequency != 2 {
		t.Errorf("expected frequency 2, got %d", top.Frequency)
	}
	if !top.LastOccurrence.Equal(ts.Add(time.Minute)) {
		t.Errorf("expected last occurrence %v, got %v", ts.Add(time.Minute), top.LastOccurrence)
	}
}

func TestPatterns_CappedAndSorted(t *testing.T) {
	ts := time.Date(2024, 1, 14, 10, 0, 0, 0, time.UTC)

	var events []domain.ErrorEvent
	for group := 0; group < domain.MaxContextPatterns+10; group++ {
		// Group i occurs i+1 times; letters keep signatures distinct.
		msg := fmt.Sprintf("failure kind %c", 'A'+group)
		for n := 0; n <= group; n++ {
			events = append(events, analyzedEvent(
				fmt.Sprintf("g%d-%d", group, n), msg, ts.Add(time.Duration(n)*time.Second), domain.PriorityMedium))
		}
	}

	patterns := Patterns(events)
	if len(patterns) != domain.MaxContextPatterns {
		t.Fatalf("expected cap of %d patterns, got %d", domain.MaxContextPatterns, len(patterns))
	}
	for i := 1; i < len(patterns); i++ {
		if patterns[i].Frequency > patterns[i-1].Frequency {
			t.Fatal("patterns must be sorted by frequency descending")
		}
	}
	if patterns[0].Frequency != domain.MaxContextPatterns+10 {
		t.Errorf("expected most frequent group first, got frequency %d", patterns[0].Frequency)
	}
}

// =============================================================================
// BatchContext
// =============================================================================

func TestBatchContext(t *testing.T) {
	asOf := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	ts := asOf.AddDate(0, 0, -1)

	events := []domain.ErrorEvent{
		{ID: "a", Timestamp: ts, Message: "worker 12 crashed"},
		{ID: "b", Timestamp: ts, Message: "worker 99 crashed"},
	}

	got := BatchContext(events, asOf)
	if got == nil {
		t.Fatal("expected a batch context")
	}
	if len(got.PreviousAnalysisResults) != 0 {
		t.Error("batch context must not carry prior analysis samples")
	}
	if len(got.ErrorPatterns) != 1 || got.ErrorPatterns[0].Frequency != 2 {
		t.Errorf("expected one pattern with frequency 2, got %+v", got.ErrorPatterns)
	}

	if BatchContext(nil, asOf) != nil {
		t.Error("empty batch must yield nil context")
	}
}
