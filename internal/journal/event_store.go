package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// maxLineSize bounds a single journal line; a few hundred constituents with
// decimal prices stay well under this.
const maxLineSize = 4 * 1024 * 1024

// FileEventStore implements EventStore using JSONL files
type FileEventStore struct {
	baseDir string
	mu      sync.RWMutex
	files   map[string]*os.File // index_id -> file handle
}

// NewFileEventStore creates a new file-based event store
func NewFileEventStore(baseDir string) (*FileEventStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileEventStore{
		baseDir: baseDir,
		files:   make(map[string]*os.File),
	}, nil
}

// Append appends an event to the log for a specific index
func (s *FileEventStore) Append(ctx context.Context, indexID string, event basket.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.getOrCreateFile(indexID)
	if err != nil {
		return fmt.Errorf("failed to get file for index %s: %w", indexID, err)
	}

	record := EventRecord{
		Version:   1,
		IndexID:   event.IndexID(),
		Sequence:  event.Sequence(),
		Type:      event.EventType(),
		Timestamp: event.Timestamp(),
		Payload:   event,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	// Sync to disk for durability
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// getOrCreateFile gets or creates a file handle for an index
func (s *FileEventStore) getOrCreateFile(indexID string) (*os.File, error) {
	if file, ok := s.files[indexID]; ok {
		return file, nil
	}

	indexDir := filepath.Join(s.baseDir, indexID)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	filePath := filepath.Join(indexDir, "events.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}

	s.files[indexID] = file
	return file, nil
}

// ReadFrom reads events from a specific sequence number (inclusive)
func (s *FileEventStore) ReadFrom(ctx context.Context, indexID string, fromSeq int64) ([]basket.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := filepath.Join(s.baseDir, indexID, "events.log")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return []basket.Event{}, nil // No events yet
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	var events []basket.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
		}

		if record.Sequence < fromSeq {
			continue
		}

		event, err := s.deserializeEvent(&record)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event: %w", err)
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events file: %w", err)
	}

	return events, nil
}

// deserializeEvent deserializes an EventRecord to a concrete event type
func (s *FileEventStore) deserializeEvent(record *EventRecord) (basket.Event, error) {
	// Re-marshal payload to JSON for type-specific unmarshaling
	payloadBytes, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	switch record.Type {
	case "IndexCreated":
		var event basket.IndexCreatedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal IndexCreatedEvent: %w", err)
		}
		return &event, nil

	case "OrderQueued":
		var event basket.OrderQueuedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OrderQueuedEvent: %w", err)
		}
		return &event, nil

	case "OrderAdmitted":
		var event basket.OrderAdmittedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OrderAdmittedEvent: %w", err)
		}
		return &event, nil

	case "OrderFilled":
		var event basket.OrderFilledEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OrderFilledEvent: %w", err)
		}
		return &event, nil

	case "OrderCancelled":
		var event basket.OrderCancelledEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OrderCancelledEvent: %w", err)
		}
		return &event, nil

	case "PricesUpdated":
		var event basket.PricesUpdatedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal PricesUpdatedEvent: %w", err)
		}
		return &event, nil

	case "LiquidityUpdated":
		var event basket.LiquidityUpdatedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal LiquidityUpdatedEvent: %w", err)
		}
		return &event, nil

	case "IndexRebalanced":
		var event basket.IndexRebalancedEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal IndexRebalancedEvent: %w", err)
		}
		return &event, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", record.Type)
	}
}

// GetLastSequence returns the last sequence number for an index
func (s *FileEventStore) GetLastSequence(ctx context.Context, indexID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := filepath.Join(s.baseDir, indexID, "events.log")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, nil // No events yet, start from 0
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	var lastSeq int64 = 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return 0, fmt.Errorf("failed to unmarshal event record: %w", err)
		}

		if record.Sequence > lastSeq {
			lastSeq = record.Sequence
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan events file: %w", err)
	}

	return lastSeq, nil
}

// ListIndices lists all indices that have event logs
func (s *FileEventStore) ListIndices(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.baseDir); os.IsNotExist(err) {
		return []string{}, nil // No indices yet
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var indices []string
	for _, entry := range entries {
		if entry.IsDir() {
			eventsFile := filepath.Join(s.baseDir, entry.Name(), "events.log")
			if _, err := os.Stat(eventsFile); err == nil {
				indices = append(indices, entry.Name())
			}
		}
	}

	return indices, nil
}

// Close closes all open file handles
func (s *FileEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for indexID, file := range s.files {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file for index %s: %w", indexID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing files: %v", errs)
	}

	return nil
}
