package treasury

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance aggregates the cash flows of one index. The simulator never blocks
// an order on funds; the treasury is the accounting view of what the solver
// has committed, spent and returned.
type Balance struct {
	Reserved decimal.Decimal // earmarked by open buy orders, not yet spent
	Spent    decimal.Decimal // paid out on executed buy legs
	Released decimal.Decimal // returned by cancels
	Proceeds decimal.Decimal // received from executed sell legs
}

// NetOutflow returns cash paid minus cash received.
func (b Balance) NetOutflow() decimal.Decimal {
	return b.Spent.Sub(b.Proceeds)
}

// ReserveIntent earmarks funds when an order enters the admission queue.
type ReserveIntent struct {
	IndexID    string
	PositionID int64
	Action     string          // "BUY" or "SELL"
	Notional   decimal.Decimal // quantity * requested index price
}

// Validate validates the reserve intent
func (r *ReserveIntent) Validate() error {
	if r.IndexID == "" {
		return fmt.Errorf("index_id is required")
	}
	if r.PositionID <= 0 {
		return fmt.Errorf("position_id must be positive")
	}
	if r.Action != "BUY" && r.Action != "SELL" {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	if r.Notional.IsNegative() {
		return fmt.Errorf("notional must not be negative")
	}
	return nil
}

// SettleIntent applies the cash effect of an executed fill.
type SettleIntent struct {
	IndexID       string
	PositionID    int64
	Action        string          // "BUY" or "SELL"
	ExecutedValue decimal.Decimal // sum of leg quantity * execution price
}

// Validate validates the settle intent
func (s *SettleIntent) Validate() error {
	if s.IndexID == "" {
		return fmt.Errorf("index_id is required")
	}
	if s.PositionID <= 0 {
		return fmt.Errorf("position_id must be positive")
	}
	if s.Action != "BUY" && s.Action != "SELL" {
		return fmt.Errorf("invalid action: %s", s.Action)
	}
	if s.ExecutedValue.IsNegative() {
		return fmt.Errorf("executed value must not be negative")
	}
	return nil
}

// ReleaseIntent returns the unspent remainder of a reservation on cancel.
type ReleaseIntent struct {
	IndexID    string
	PositionID int64
}

// Validate validates the release intent
func (r *ReleaseIntent) Validate() error {
	if r.IndexID == "" {
		return fmt.Errorf("index_id is required")
	}
	if r.PositionID <= 0 {
		return fmt.Errorf("position_id must be positive")
	}
	return nil
}
