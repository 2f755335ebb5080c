package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

// Store is the file-backed EventRepository. Each partition is one JSON array
// at {basePath}/{partitionKey}.json.
type Store struct {
	basePath string
	log      *slog.Logger

	// Per-partition lock table. Serializes in-process writers against the
	// same partition; cross-process writers must be serialized externally.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a file store rooted at basePath.
func NewStore(basePath string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		basePath: basePath,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) partitionLock(partitionKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[partitionKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[partitionKey] = l
	}
	return l
}

func (s *Store) partitionPath(partitionKey string) string {
	return filepath.Join(s.basePath, partitionKey+".json")
}

// Exists reports whether the partition file has been written.
func (s *Store) Exists(ctx context.Context, partitionKey string) (bool, error) {
	_, err := os.Stat(s.partitionPath(partitionKey))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat partition %s: %w", partitionKey, err)
}

// Load reads all events in a partition. Missing files and corrupt content
// both degrade to an empty slice; corruption is logged. Reads take no lock:
// saves replace the file atomically, so a concurrent read sees either the old
// or the new content, never a torn write.
func (s *Store) Load(ctx context.Context, partitionKey string) ([]domain.ErrorEvent, error) {
	return s.read(partitionKey), nil
}

func (s *Store) read(partitionKey string) []domain.ErrorEvent {
	data, err := os.ReadFile(s.partitionPath(partitionKey))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Failed to read partition, treating as empty",
				"partition", partitionKey, "error", err)
		}
		return []domain.ErrorEvent{}
	}

	var events []domain.ErrorEvent
	if err := json.Unmarshal(data, &events); err != nil {
		s.log.Warn("Corrupt partition content, treating as empty",
			"partition", partitionKey, "error", err)
		return []domain.ErrorEvent{}
	}
	if events == nil {
		events = []domain.ErrorEvent{}
	}
	return events
}

// Save overwrites the partition with the given events.
func (s *Store) Save(ctx context.Context, partitionKey string, events []domain.ErrorEvent) error {
	lock := s.partitionLock(partitionKey)
	lock.Lock()
	defer lock.Unlock()
	return s.save(partitionKey, events)
}

// save writes the events to a temp file in the same directory and renames it
// over the target, so a crash mid-write leaves the previous content intact.
// Callers hold the partition lock.
func (s *Store) save(partitionKey string, events []domain.ErrorEvent) error {
	if events == nil {
		events = []domain.ErrorEvent{}
	}

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal partition %s: %w", partitionKey, err)
	}

	target := s.partitionPath(partitionKey)
	tmp, err := os.CreateTemp(s.basePath, partitionKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write partition %s: %w", partitionKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close partition %s: %w", partitionKey, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace partition %s: %w", partitionKey, err)
	}
	return nil
}

// Append adds one event via load-mutate-save, assigning an ID when the caller
// supplied none.
func (s *Store) Append(ctx context.Context, partitionKey string, event domain.ErrorEvent) (domain.ErrorEvent, error) {
	lock := s.partitionLock(partitionKey)
	lock.Lock()
	defer lock.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	events := append(s.read(partitionKey), event)
	if err := s.save(partitionKey, events); err != nil {
		return domain.ErrorEvent{}, err
	}
	return event, nil
}

// LoadRange visits every calendar day in [from, to] and returns the events
// whose timestamps fall inside the bounds, inclusive both ends.
func (s *Store) LoadRange(ctx context.Context, from, to time.Time) ([]domain.ErrorEvent, error) {
	var out []domain.ErrorEvent

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())

	for !day.After(last) {
		for _, e := range s.read(storage.PartitionKey(day)) {
			if e.Timestamp.Before(from) || e.Timestamp.After(to) {
				continue
			}
			out = append(out, e)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}
