package journal

import (
	"context"
	"fmt"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// FileRecoveryService implements RecoveryService
type FileRecoveryService struct {
	eventStore    EventStore
	snapshotStore SnapshotStore
}

// NewFileRecoveryService creates a new recovery service
func NewFileRecoveryService(eventStore EventStore, snapshotStore SnapshotStore) *FileRecoveryService {
	return &FileRecoveryService{
		eventStore:    eventStore,
		snapshotStore: snapshotStore,
	}
}

// Recover recovers index state for a specific index
// Returns the recovered snapshot and events to replay
func (s *FileRecoveryService) Recover(ctx context.Context, indexID string) (*Snapshot, []basket.Event, error) {
	// Step 1: Load the latest snapshot
	snapshot, err := s.snapshotStore.Load(ctx, indexID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var fromSeq int64 = 1
	if snapshot != nil {
		// Start from the next sequence after snapshot
		fromSeq = snapshot.LastSequence + 1
	}

	// Step 2: Read events from last_sequence + 1
	events, err := s.eventStore.ReadFrom(ctx, indexID, fromSeq)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read events: %w", err)
	}

	// Step 3: The replayed tail must pick up exactly where the snapshot
	// stopped, otherwise a truncated log would go unnoticed.
	if snapshot != nil && len(events) > 0 && events[0].Sequence() != fromSeq {
		return nil, nil, fmt.Errorf("sequence gap after snapshot: expected %d, got %d",
			fromSeq, events[0].Sequence())
	}

	// Step 4: Validate sequence continuity
	if err := s.ValidateSequence(events); err != nil {
		return nil, nil, fmt.Errorf("sequence validation failed: %w", err)
	}

	return snapshot, events, nil
}

// ValidateSequence validates that event sequences are continuous
func (s *FileRecoveryService) ValidateSequence(events []basket.Event) error {
	if len(events) == 0 {
		return nil // Empty is valid
	}

	for i := 1; i < len(events); i++ {
		prevSeq := events[i-1].Sequence()
		currSeq := events[i].Sequence()

		if currSeq != prevSeq+1 {
			return fmt.Errorf("sequence gap detected: expected %d, got %d", prevSeq+1, currSeq)
		}
	}

	return nil
}
