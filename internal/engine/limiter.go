package engine

import (
	"sync"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// AdmissionLimiter applies the sliding-window admission cap. In global scope
// one window is shared by every index; in per-index scope each index gets its
// own window, created on first use. The limiter is shared across workers, so
// window lookup is guarded here while the windows themselves carry their own
// locks.
type AdmissionLimiter struct {
	scope  RateLimitScope
	limit  int
	window int64

	mu       sync.Mutex
	global   *basket.RateWindow
	perIndex map[string]*basket.RateWindow
}

// NewAdmissionLimiter builds a limiter for the given scope.
func NewAdmissionLimiter(scope RateLimitScope, limit int, window int64) *AdmissionLimiter {
	l := &AdmissionLimiter{
		scope:  scope,
		limit:  limit,
		window: window,
	}
	if scope == ScopePerIndex {
		l.perIndex = make(map[string]*basket.RateWindow)
	} else {
		l.global = basket.NewRateWindow(limit, window)
	}
	return l
}

// Scope returns the configured scope.
func (l *AdmissionLimiter) Scope() RateLimitScope {
	return l.scope
}

// TryAdmit consumes one admission slot for the index at time t if available.
func (l *AdmissionLimiter) TryAdmit(indexID string, t int64) bool {
	return l.windowFor(indexID).TryAdmit(t)
}

// Count returns the admissions inside the window for the index at time t.
func (l *AdmissionLimiter) Count(indexID string, t int64) int {
	return l.windowFor(indexID).Count(t)
}

func (l *AdmissionLimiter) windowFor(indexID string) *basket.RateWindow {
	if l.scope != ScopePerIndex {
		return l.global
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, exists := l.perIndex[indexID]
	if !exists {
		w = basket.NewRateWindow(l.limit, l.window)
		l.perIndex[indexID] = w
	}
	return w
}
