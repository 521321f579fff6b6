package basket

import (
	"testing"
)

// TestRateWindowCap tests that admissions stop at the limit
func TestRateWindowCap(t *testing.T) {
	w := NewRateWindow(3, 10)

	for i := 0; i < 3; i++ {
		if !w.TryAdmit(0) {
			t.Fatalf("admission %d should succeed", i+1)
		}
	}
	if w.TryAdmit(0) {
		t.Errorf("admission past the cap should fail")
	}
	if got := w.Count(0); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
}

// TestRateWindowInclusiveBoundary tests that entries exactly one window old still count
func TestRateWindowInclusiveBoundary(t *testing.T) {
	w := NewRateWindow(1, 10)

	if !w.TryAdmit(0) {
		t.Fatalf("first admission should succeed")
	}

	// At t=10 the entry from t=0 sits on the boundary (0 >= 10-10) and
	// still occupies the slot.
	if w.TryAdmit(10) {
		t.Errorf("admission at the window boundary should fail")
	}
	if got := w.Count(10); got != 1 {
		t.Errorf("expected count 1 at boundary, got %d", got)
	}

	// One unit later the entry expires.
	if !w.TryAdmit(11) {
		t.Errorf("admission after expiry should succeed")
	}
	if got := w.Count(11); got != 1 {
		t.Errorf("expected count 1 after re-admission, got %d", got)
	}
}

// TestRateWindowPartialPrune tests that only entries older than the window drop out
func TestRateWindowPartialPrune(t *testing.T) {
	w := NewRateWindow(2, 10)

	if !w.TryAdmit(0) {
		t.Fatalf("admission at t=0 should succeed")
	}
	if !w.TryAdmit(5) {
		t.Fatalf("admission at t=5 should succeed")
	}
	if w.TryAdmit(10) {
		t.Errorf("window full at t=10, admission should fail")
	}

	// At t=11 the t=0 entry expires but the t=5 entry remains.
	if got := w.Count(11); got != 1 {
		t.Errorf("expected count 1 at t=11, got %d", got)
	}
	if !w.TryAdmit(11) {
		t.Errorf("freed slot at t=11 should admit")
	}
	if w.TryAdmit(11) {
		t.Errorf("window full again, admission should fail")
	}
}

// TestRateWindowBurstThenDrain tests a full-capacity burst draining over time
func TestRateWindowBurstThenDrain(t *testing.T) {
	w := NewRateWindow(100, 10)

	for i := 0; i < 100; i++ {
		if !w.TryAdmit(0) {
			t.Fatalf("burst admission %d should succeed", i+1)
		}
	}
	if w.TryAdmit(0) {
		t.Errorf("admission 101 in the same instant should fail")
	}

	// The burst occupies the window through t=10 inclusive.
	for ts := int64(1); ts <= 10; ts++ {
		if w.TryAdmit(ts) {
			t.Fatalf("admission at t=%d should fail while the burst is in window", ts)
		}
	}

	// At t=11 the whole burst expires at once.
	if got := w.Count(11); got != 0 {
		t.Errorf("expected empty window at t=11, got %d", got)
	}
	if !w.TryAdmit(11) {
		t.Errorf("admission at t=11 should succeed")
	}
}
