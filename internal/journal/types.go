package journal

import (
	"context"
	"time"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// EventRecord is the envelope written to the log, one JSON object per line
type EventRecord struct {
	Version   int    `json:"version"`
	IndexID   string `json:"index_id"`
	Sequence  int64  `json:"sequence"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // simulation time, not wall clock
	Payload   any    `json:"payload"`
}

// Snapshot captures an index at a sequence boundary
type Snapshot struct {
	Version      int               `json:"version"`
	IndexID      string            `json:"index_id"`
	LastSequence int64             `json:"last_sequence"`
	CapturedAt   time.Time         `json:"captured_at"`
	State        basket.IndexState `json:"state"`
}

// EventStore defines the interface for event log persistence
type EventStore interface {
	// Append appends an event to the log for a specific index
	Append(ctx context.Context, indexID string, event basket.Event) error

	// ReadFrom reads events from a specific sequence number (inclusive)
	ReadFrom(ctx context.Context, indexID string, fromSeq int64) ([]basket.Event, error)

	// GetLastSequence returns the last sequence number for an index
	GetLastSequence(ctx context.Context, indexID string) (int64, error)

	// ListIndices lists all indices that have event logs
	ListIndices(ctx context.Context) ([]string, error)

	// Close closes the event store
	Close() error
}

// SnapshotStore defines the interface for snapshot persistence
type SnapshotStore interface {
	// Save saves a snapshot for a specific index
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load loads the latest snapshot for a specific index
	Load(ctx context.Context, indexID string) (*Snapshot, error)

	// ListSnapshots lists all available snapshots for an index (sorted by sequence desc)
	ListSnapshots(ctx context.Context, indexID string) ([]SnapshotMetadata, error)

	// Close closes the snapshot store
	Close() error
}

// SnapshotMetadata represents snapshot metadata
type SnapshotMetadata struct {
	IndexID      string    `json:"index_id"`
	LastSequence int64     `json:"last_sequence"`
	CapturedAt   time.Time `json:"captured_at"`
	FilePath     string    `json:"file_path"`
}

// RecoveryService defines the interface for recovery operations
type RecoveryService interface {
	// Recover recovers index state for a specific index
	// Returns the recovered snapshot and events to replay
	Recover(ctx context.Context, indexID string) (*Snapshot, []basket.Event, error)

	// ValidateSequence validates that event sequences are continuous
	ValidateSequence(events []basket.Event) error
}
