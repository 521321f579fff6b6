package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

func techState(lastSeq int64) basket.IndexState {
	return basket.IndexState{
		IndexID:     "TECH2",
		ListedPrice: dec("20"),
		NAV:         dec("20"),
		Composition: []basket.AssetState{
			{Symbol: "AAPL", Quantity: dec("1"), RefPrice: dec("10"), Price: dec("10")},
			{Symbol: "GOOG", Quantity: dec("2"), RefPrice: dec("5"), Price: dec("5")},
		},
		Weights: map[string]decimal.Decimal{
			"AAPL": dec("0.5"),
			"GOOG": dec("0.5"),
		},
		Liquidity: map[string]basket.LiquidityProfile{
			"AAPL": {MaxFillable: dec("100"), PriceImpact: dec("0.1")},
		},
		LastSequence: lastSeq,
	}
}

func TestFileSnapshotStore_SaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	snapshot := &Snapshot{
		Version:      1,
		IndexID:      "TECH2",
		LastSequence: 100,
		CapturedAt:   time.Now().UTC(),
		State:        techState(100),
	}

	if err := store.Save(ctx, snapshot); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	loaded, err := store.Load(ctx, "TECH2")
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if loaded == nil {
		t.Fatal("expected snapshot, got nil")
	}

	if loaded.IndexID != "TECH2" {
		t.Errorf("expected index TECH2, got %s", loaded.IndexID)
	}
	if loaded.LastSequence != 100 {
		t.Errorf("expected last sequence 100, got %d", loaded.LastSequence)
	}
	if loaded.Version != 1 {
		t.Errorf("expected version 1, got %d", loaded.Version)
	}
	if !loaded.State.NAV.Equal(dec("20")) {
		t.Errorf("expected NAV 20 after round trip, got %s", loaded.State.NAV)
	}
	if len(loaded.State.Composition) != 2 {
		t.Fatalf("expected 2 constituents after round trip, got %d", len(loaded.State.Composition))
	}
	if !loaded.State.Weights["GOOG"].Equal(dec("0.5")) {
		t.Errorf("expected GOOG weight 0.5 after round trip, got %s", loaded.State.Weights["GOOG"])
	}
	if profile, ok := loaded.State.Liquidity["AAPL"]; !ok || !profile.MaxFillable.Equal(dec("100")) {
		t.Errorf("expected AAPL liquidity {100, 0.1} after round trip, got %+v", profile)
	}
}

func TestFileSnapshotStore_SaveNil(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}
	defer store.Close()

	if err := store.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil snapshot, got nil")
	}
}

func TestFileSnapshotStore_LoadLatest(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Save multiple snapshots with different sequences
	sequences := []int64{50, 100, 75, 120}
	for _, seq := range sequences {
		snapshot := &Snapshot{
			Version:      1,
			IndexID:      "TECH2",
			LastSequence: seq,
			CapturedAt:   time.Now().UTC(),
			State:        techState(seq),
		}
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("failed to save snapshot seq=%d: %v", seq, err)
		}
	}

	// Load should return the latest (seq=120)
	loaded, err := store.Load(ctx, "TECH2")
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if loaded == nil {
		t.Fatal("expected snapshot, got nil")
	}

	if loaded.LastSequence != 120 {
		t.Errorf("expected latest sequence 120, got %d", loaded.LastSequence)
	}
}

func TestFileSnapshotStore_ListSnapshots(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	snapshots, err := store.ListSnapshots(ctx, "TECH2")
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected 0 snapshots, got %d", len(snapshots))
	}

	sequences := []int64{50, 100, 75}
	for _, seq := range sequences {
		snapshot := &Snapshot{
			Version:      1,
			IndexID:      "TECH2",
			LastSequence: seq,
			CapturedAt:   time.Now().UTC(),
			State:        techState(seq),
		}
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("failed to save snapshot seq=%d: %v", seq, err)
		}
	}

	snapshots, err = store.ListSnapshots(ctx, "TECH2")
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}

	// Verify sorted descending
	if snapshots[0].LastSequence != 100 {
		t.Errorf("expected first snapshot seq=100, got %d", snapshots[0].LastSequence)
	}
	if snapshots[1].LastSequence != 75 {
		t.Errorf("expected second snapshot seq=75, got %d", snapshots[1].LastSequence)
	}
	if snapshots[2].LastSequence != 50 {
		t.Errorf("expected third snapshot seq=50, got %d", snapshots[2].LastSequence)
	}
}

func TestFileSnapshotStore_NoSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}
	defer store.Close()

	loaded, err := store.Load(context.Background(), "MISSING9")
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if loaded != nil {
		t.Errorf("expected nil snapshot, got %v", loaded)
	}
}
