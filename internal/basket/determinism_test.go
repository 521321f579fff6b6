package basket

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// runScriptedSession drives one index through a fixed command script and
// returns every event in emission order.
func runScriptedSession(t *testing.T) (*Index, []Event) {
	t.Helper()

	var events []Event
	collect := func(result *CommandResult) {
		events = append(events, result.Events...)
	}

	idx, created, err := NewIndex(techIndexRequest(referenceLiquidity()), IndexOptions{FeeRate: d("0.001")})
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	collect(created)

	collect(mustSubmit(t, idx, &SubmitOrderRequest{
		PositionID: 1,
		IndexID:    "TECH3",
		Action:     ActionBuy,
		Quantity:   d("300000"),
		IndexPrice: d("30"),
		Timestamp:  0,
		ArrivalSeq: 1,
	}))
	collect(mustSubmit(t, idx, &SubmitOrderRequest{
		PositionID: 2,
		IndexID:    "TECH3",
		Action:     ActionSell,
		Quantity:   d("100"),
		IndexPrice: d("30"),
		Timestamp:  0,
		ArrivalSeq: 2,
	}))
	collect(mustSubmit(t, idx, &SubmitOrderRequest{
		PositionID: 3,
		IndexID:    "TECH3",
		Action:     ActionBuy,
		Quantity:   d("50"),
		IndexPrice: d("30"),
		Timestamp:  0,
		ArrivalSeq: 3,
	}))

	collect(mustUpdatePrices(t, idx, map[string]decimal.Decimal{
		"AAPL": d("9"),
		"GOOG": d("4"),
		"MSFT": d("1.5"),
	}, 1))

	collect(mustAdmitNext(t, idx, 1))
	collect(mustAdmitNext(t, idx, 1))

	cancelled, err := idx.Cancel(&CancelOrderRequest{PositionID: 3, IndexID: "TECH3", Timestamp: 2})
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	collect(cancelled)

	rebalanced, err := idx.Rebalance(&RebalanceRequest{
		IndexID: "TECH3",
		NewWeights: map[string]decimal.Decimal{
			"AAPL": d("0.5"),
			"GOOG": d("0.5"),
		},
		Timestamp: 3,
	})
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}
	collect(rebalanced)

	return idx, events
}

// TestDeterministicReplay tests that the same command script produces identical events
func TestDeterministicReplay(t *testing.T) {
	idx1, events1 := runScriptedSession(t)
	idx2, events2 := runScriptedSession(t)

	if len(events1) != len(events2) {
		t.Fatalf("different number of events: %d vs %d", len(events1), len(events2))
	}
	for i := range events1 {
		e1 := compactEvent(events1[i])
		e2 := compactEvent(events2[i])
		if e1 != e2 {
			t.Errorf("event %d mismatch:\nrun1: %s\nrun2: %s", i, e1, e2)
		}
	}

	// Final aggregate state must agree as well.
	s1, s2 := idx1.State(), idx2.State()
	if !s1.NAV.Equal(s2.NAV) {
		t.Errorf("NAV mismatch: %s vs %s", s1.NAV, s2.NAV)
	}
	if s1.LastSequence != s2.LastSequence {
		t.Errorf("sequence mismatch: %d vs %d", s1.LastSequence, s2.LastSequence)
	}
	if len(s1.Composition) != len(s2.Composition) {
		t.Fatalf("composition size mismatch: %d vs %d", len(s1.Composition), len(s2.Composition))
	}
	for i := range s1.Composition {
		a1, a2 := s1.Composition[i], s2.Composition[i]
		if a1.Symbol != a2.Symbol || !a1.Quantity.Equal(a2.Quantity) || !a1.Price.Equal(a2.Price) {
			t.Errorf("constituent %d mismatch: %+v vs %+v", i, a1, a2)
		}
	}
}

// TestSequenceMonotonicity tests that event sequence numbers are strictly continuous
func TestSequenceMonotonicity(t *testing.T) {
	_, events := runScriptedSession(t)

	var lastSequence int64
	for i, event := range events {
		if event.Sequence() != lastSequence+1 {
			t.Errorf("event %d (%s): expected sequence %d, got %d",
				i, event.EventType(), lastSequence+1, event.Sequence())
		}
		lastSequence = event.Sequence()

		wantID := fmt.Sprintf("evt_%d", event.Sequence())
		if event.EventID() != wantID {
			t.Errorf("event %d: expected id %s, got %s", i, wantID, event.EventID())
		}
	}
}

// compactEvent renders the business fields of an event for comparison.
func compactEvent(event Event) string {
	switch e := event.(type) {
	case *IndexCreatedEvent:
		return fmt.Sprintf("IndexCreated|%d|%s|%s|%s",
			e.Sequence(), e.IndexID(), e.ListedPrice, e.NAV)
	case *OrderQueuedEvent:
		return fmt.Sprintf("OrderQueued|%d|%s|%d|%s|%s|%s|%s",
			e.Sequence(), e.IndexID(), e.PositionID, e.Action, e.Quantity, e.IndexPrice, e.Status)
	case *OrderAdmittedEvent:
		return fmt.Sprintf("OrderAdmitted|%d|%s|%d",
			e.Sequence(), e.IndexID(), e.PositionID)
	case *OrderFilledEvent:
		return fmt.Sprintf("OrderFilled|%d|%s|%d|%s|%s|%s|%s|%s",
			e.Sequence(), e.IndexID(), e.PositionID,
			e.Fill.FillPercentage, e.Fill.FilledQuantity, e.Fill.AvgPrice, e.Fill.RealizedLoss, e.Status)
	case *OrderCancelledEvent:
		return fmt.Sprintf("OrderCancelled|%d|%s|%d|%s|%s|%s",
			e.Sequence(), e.IndexID(), e.PositionID, e.PriorStatus, e.FilledQuantity, e.RemainingQuantity)
	case *PricesUpdatedEvent:
		return fmt.Sprintf("PricesUpdated|%d|%s|%s",
			e.Sequence(), e.IndexID(), e.NAV)
	case *IndexRebalancedEvent:
		return fmt.Sprintf("IndexRebalanced|%d|%s|%s|%s|%s",
			e.Sequence(), e.IndexID(), e.Plan.NAVBefore, e.Plan.NAVAfter, e.Plan.TotalCost)
	default:
		return fmt.Sprintf("%s|%d|%s", event.EventType(), event.Sequence(), event.IndexID())
	}
}
