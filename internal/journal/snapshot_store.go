package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSnapshotStore implements SnapshotStore using JSON files
type FileSnapshotStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileSnapshotStore creates a new file-based snapshot store
func NewFileSnapshotStore(baseDir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileSnapshotStore{
		baseDir: baseDir,
	}, nil
}

// Save saves a snapshot for a specific index
func (s *FileSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if snapshot.IndexID == "" {
		return fmt.Errorf("snapshot index_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexDir := filepath.Join(s.baseDir, snapshot.IndexID)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	// Build snapshot filename: snapshot-<last_seq>.json
	filename := fmt.Sprintf("snapshot-%d.json", snapshot.LastSequence)
	filePath := filepath.Join(indexDir, filename)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to temporary file first
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath) // Clean up temp file
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return nil
}

// Load loads the latest snapshot for a specific index
func (s *FileSnapshotStore) Load(ctx context.Context, indexID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots, err := s.listSnapshotsInternal(indexID)
	if err != nil {
		return nil, err
	}

	if len(snapshots) == 0 {
		return nil, nil // No snapshot available
	}

	// Load the latest snapshot (first in sorted list)
	latestSnapshot := snapshots[0]
	data, err := os.ReadFile(latestSnapshot.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// ListSnapshots lists all available snapshots for an index (sorted by sequence desc)
func (s *FileSnapshotStore) ListSnapshots(ctx context.Context, indexID string) ([]SnapshotMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSnapshotsInternal(indexID)
}

// listSnapshotsInternal internal implementation without locking
func (s *FileSnapshotStore) listSnapshotsInternal(indexID string) ([]SnapshotMetadata, error) {
	indexDir := filepath.Join(s.baseDir, indexID)

	if _, err := os.Stat(indexDir); os.IsNotExist(err) {
		return []SnapshotMetadata{}, nil // No snapshots yet
	}

	entries, err := os.ReadDir(indexDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []SnapshotMetadata
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Parse snapshot filename: snapshot-<seq>.json
		name := entry.Name()
		if !strings.HasPrefix(name, "snapshot-") || !strings.HasSuffix(name, ".json") {
			continue
		}

		var seq int64
		if _, err := fmt.Sscanf(name, "snapshot-%d.json", &seq); err != nil {
			continue // Skip invalid filenames
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		snapshots = append(snapshots, SnapshotMetadata{
			IndexID:      indexID,
			LastSequence: seq,
			CapturedAt:   info.ModTime(),
			FilePath:     filepath.Join(indexDir, name),
		})
	}

	// Sort by sequence descending (latest first)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].LastSequence > snapshots[j].LastSequence
	})

	return snapshots, nil
}

// Close closes the snapshot store
func (s *FileSnapshotStore) Close() error {
	// No resources to clean up for file-based store
	return nil
}
