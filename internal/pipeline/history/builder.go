package history

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

// Builder derives a bounded historical-context summary from recently analyzed
// events. Context is an enhancement, not a precondition: every failure path
// degrades to "no context" so a run can proceed with reduced quality.
type Builder struct {
	store      storage.EventRepository
	windowDays int
	log        *slog.Logger
}

// NewBuilder creates a context builder reading windowDays of history.
func NewBuilder(store storage.EventRepository, windowDays int, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Builder{store: store, windowDays: windowDays, log: log}
}

// Build summarizes analyzed events from the window ending the day before
// asOf. Returns nil when there is no usable history; never returns an error.
func (b *Builder) Build(ctx context.Context, asOf time.Time) *domain.HistoricalContext {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	from := dayStart.AddDate(0, 0, -b.windowDays)
	to := dayStart.Add(-time.Nanosecond) // end of the day before asOf

	events, err := b.store.LoadRange(ctx, from, to)
	if err != nil {
		b.log.Warn("Failed to load history window, proceeding without context",
			"from", from, "to", to, "error", err)
		return nil
	}

	analyzed := make([]domain.ErrorEvent, 0, len(events))
	for _, e := range events {
		if e.IsAnalyzed {
			analyzed = append(analyzed, e)
		}
	}
	if len(analyzed) == 0 {
		return nil
	}

	// Most-recent-first sample, capped.
	sort.SliceStable(analyzed, func(i, j int) bool {
		return analyzed[i].Timestamp.After(analyzed[j].Timestamp)
	})
	samples := analyzed
	if len(samples) > domain.MaxContextSamples {
		samples = samples[:domain.MaxContextSamples]
	}

	return &domain.HistoricalContext{
		PreviousAnalysisResults: samples,
		ErrorPatterns:           Patterns(analyzed),
		AnalysisDate:            asOf,
	}
}

type patternKey struct {
	signature string
	priority  domain.Priority
}

// Patterns groups events by (Signature(message), priority) and returns the
// most frequent groups, frequency descending, capped at MaxContextPatterns.
func Patterns(events []domain.ErrorEvent) []domain.ErrorPattern {
	groups := make(map[patternKey]*domain.ErrorPattern)
	for _, e := range events {
		key := patternKey{signature: Signature(e.Message), priority: e.Priority}
		p, ok := groups[key]
		if !ok {
			groups[key] = &domain.ErrorPattern{
				Pattern:        key.signature,
				Priority:       e.Priority,
				Frequency:      1,
				LastOccurrence: e.Timestamp,
			}
			continue
		}
		p.Frequency++
		if e.Timestamp.After(p.LastOccurrence) {
			p.LastOccurrence = e.Timestamp
		}
	}

	patterns := make([]domain.ErrorPattern, 0, len(groups))
	for _, p := range groups {
		patterns = append(patterns, *p)
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].LastOccurrence.After(patterns[j].LastOccurrence)
	})

	if len(patterns) > domain.MaxContextPatterns {
		patterns = patterns[:domain.MaxContextPatterns]
	}
	return patterns
}

// BatchContext builds a minimal context from the current batch alone, used
// when no richer history exists yet. Frequent-message detection runs through
// the same signature function as the full builder.
func BatchContext(events []domain.ErrorEvent, asOf time.Time) *domain.HistoricalContext {
	if len(events) == 0 {
		return nil
	}
	return &domain.HistoricalContext{
		ErrorPatterns: Patterns(events),
		AnalysisDate:  asOf,
	}
}
