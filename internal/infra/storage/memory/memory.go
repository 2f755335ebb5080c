package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

// Store is an in-memory EventRepository used by tests and dry runs.
type Store struct {
	mu         sync.RWMutex
	partitions map[string][]domain.ErrorEvent
}

func NewStore() *Store {
	return &Store{
		partitions: make(map[string][]domain.ErrorEvent),
	}
}

func (s *Store) Exists(ctx context.Context, partitionKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.partitions[partitionKey]
	return ok, nil
}

func (s *Store) Load(ctx context.Context, partitionKey string) ([]domain.ErrorEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.partitions[partitionKey]
	out := make([]domain.ErrorEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) Save(ctx context.Context, partitionKey string, events []domain.ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.ErrorEvent, len(events))
	copy(stored, events)
	s.partitions[partitionKey] = stored
	return nil
}

func (s *Store) Append(ctx context.Context, partitionKey string, event domain.ErrorEvent) (domain.ErrorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	s.partitions[partitionKey] = append(s.partitions[partitionKey], event)
	return event, nil
}

func (s *Store) LoadRange(ctx context.Context, from, to time.Time) ([]domain.ErrorEvent, error) {
	var out []domain.ErrorEvent

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())

	s.mu.RLock()
	defer s.mu.RUnlock()
	for !day.After(last) {
		for _, e := range s.partitions[storage.PartitionKey(day)] {
			if e.Timestamp.Before(from) || e.Timestamp.After(to) {
				continue
			}
			out = append(out, e)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}
