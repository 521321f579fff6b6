package treasury

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryService is an in-memory implementation of the treasury service
type MemoryService struct {
	mu           sync.RWMutex
	balances     map[string]*Balance           // indexID -> Balance
	reservations map[string]*ReservationRecord // indexID|positionID -> record
	settled      map[string]struct{}           // indexID|positionID -> applied marker
}

// ReservationRecord tracks earmarked funds for one position
type ReservationRecord struct {
	IndexID        string
	PositionID     int64
	Action         string
	OriginalAmount decimal.Decimal
	Remaining      decimal.Decimal
}

// NewMemoryService creates a new in-memory treasury service
func NewMemoryService() *MemoryService {
	return &MemoryService{
		balances:     make(map[string]*Balance),
		reservations: make(map[string]*ReservationRecord),
		settled:      make(map[string]struct{}),
	}
}

func reservationKey(indexID string, positionID int64) string {
	return fmt.Sprintf("%s|%d", indexID, positionID)
}

// ReserveOnSubmit earmarks the requested notional for a queued order
func (s *MemoryService) ReserveOnSubmit(intent ReserveIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}

	amount := intent.Notional
	if intent.Action == "SELL" {
		amount = decimal.Zero
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(intent.IndexID, intent.PositionID)
	if existing, exists := s.reservations[key]; exists {
		// Same request shape is idempotent, anything else is a conflict.
		if existing.Action == intent.Action && existing.OriginalAmount.Equal(amount) {
			return nil
		}
		return &ReservationConflictError{IndexID: intent.IndexID, PositionID: intent.PositionID}
	}

	balance := s.getOrCreateBalance(intent.IndexID)
	balance.Reserved = balance.Reserved.Add(amount)

	s.reservations[key] = &ReservationRecord{
		IndexID:        intent.IndexID,
		PositionID:     intent.PositionID,
		Action:         intent.Action,
		OriginalAmount: amount,
		Remaining:      amount,
	}
	return nil
}

// SettleOnFill applies the cash effect of an executed fill
func (s *MemoryService) SettleOnFill(intent SettleIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(intent.IndexID, intent.PositionID)
	if _, exists := s.settled[key]; exists {
		return nil
	}

	balance := s.getOrCreateBalance(intent.IndexID)
	if intent.Action == "SELL" {
		balance.Proceeds = balance.Proceeds.Add(intent.ExecutedValue)
	} else {
		balance.Spent = balance.Spent.Add(intent.ExecutedValue)

		// Consume the reservation up to what is left of it; executed
		// value can land below the earmark when the fill is partial or
		// the solver re-quoted cheaper prices.
		if record, exists := s.reservations[key]; exists {
			consumed := decimal.Min(intent.ExecutedValue, record.Remaining)
			record.Remaining = record.Remaining.Sub(consumed)
			balance.Reserved = balance.Reserved.Sub(consumed)
		}
	}

	s.settled[key] = struct{}{}
	return nil
}

// ReleaseOnCancel returns the unspent remainder of a reservation
func (s *MemoryService) ReleaseOnCancel(intent ReleaseIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := reservationKey(intent.IndexID, intent.PositionID)
	record, exists := s.reservations[key]
	if !exists {
		// Never reserved or already drained; nothing to return.
		return nil
	}
	if record.Remaining.IsZero() {
		return nil
	}

	balance := s.getOrCreateBalance(intent.IndexID)
	balance.Reserved = balance.Reserved.Sub(record.Remaining)
	balance.Released = balance.Released.Add(record.Remaining)
	record.Remaining = decimal.Zero
	return nil
}

// GetBalance returns the aggregated cash flows for an index
func (s *MemoryService) GetBalance(indexID string) (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, exists := s.balances[indexID]
	if !exists {
		return Balance{
			Reserved: decimal.Zero,
			Spent:    decimal.Zero,
			Released: decimal.Zero,
			Proceeds: decimal.Zero,
		}, nil
	}
	return *balance, nil
}

func (s *MemoryService) getOrCreateBalance(indexID string) *Balance {
	balance, exists := s.balances[indexID]
	if !exists {
		balance = &Balance{
			Reserved: decimal.Zero,
			Spent:    decimal.Zero,
			Released: decimal.Zero,
			Proceeds: decimal.Zero,
		}
		s.balances[indexID] = balance
	}
	return balance
}
