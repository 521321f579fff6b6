package basket

import (
	"sync"
)

// RateWindow enforces a cap of admissions per rolling window of simulated
// time. Entries older than t-W are pruned on every check. One instance may be
// shared across indices (global scope) or owned by a single index (per-index
// scope); either way it is the only structure touched by more than one worker,
// so it carries its own lock.
type RateWindow struct {
	mu     sync.Mutex
	limit  int
	window int64
	stamps []int64
}

// NewRateWindow creates a rate window admitting at most limit entries per
// rolling window of the given length in simulation time units.
func NewRateWindow(limit int, window int64) *RateWindow {
	return &RateWindow{
		limit:  limit,
		window: window,
		stamps: make([]int64, 0, limit),
	}
}

// TryAdmit records an admission at time t if the window has capacity and
// reports whether it did.
func (w *RateWindow) TryAdmit(t int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(t)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, t)
	return true
}

// Count returns the number of admissions still inside the window at time t.
func (w *RateWindow) Count(t int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(t)
	return len(w.stamps)
}

// prune drops entries with timestamp < t-window. Caller holds the lock.
func (w *RateWindow) prune(t int64) {
	cutoff := t - w.window
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept
}
