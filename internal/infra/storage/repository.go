package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// PartitionKey maps a calendar date to its deterministic partition key,
// e.g. "logs-2024-01-15". Pure function, no I/O.
func PartitionKey(date time.Time) string {
	return fmt.Sprintf("logs-%s", date.Format("2006-01-02"))
}

// EventRepository handles date-partitioned ErrorEvent storage. One partition
// holds all events for one calendar day, unique by ID within the partition.
//
// Writers are not coordinated across processes: the pipeline assumes a single
// active writer per partition. Implementations serialize in-process writers
// per partition key; anything beyond that is the deployment's concern.
type EventRepository interface {
	// Exists reports whether the partition has been written.
	Exists(ctx context.Context, partitionKey string) (bool, error)

	// Load returns all events in a partition. A missing or empty partition
	// yields an empty slice, not an error. Corrupt content is logged and
	// degrades to an empty slice so a bad file can never crash a run.
	Load(ctx context.Context, partitionKey string) ([]domain.ErrorEvent, error)

	// Save overwrites the partition with the given events. Write failures
	// propagate; losing a write must be visible to the caller.
	Save(ctx context.Context, partitionKey string, events []domain.ErrorEvent) error

	// Append adds one event to the partition (load-mutate-save). An empty
	// event ID is assigned by the store. Returns the stored event.
	Append(ctx context.Context, partitionKey string, event domain.ErrorEvent) (domain.ErrorEvent, error)

	// LoadRange returns events whose timestamps fall within [from, to]
	// inclusive, visiting every calendar day partition the range touches.
	// Order is per-partition order concatenated, not globally re-sorted.
	LoadRange(ctx context.Context, from, to time.Time) ([]domain.ErrorEvent, error)
}
