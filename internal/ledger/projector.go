package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// Projector consumes domain events and updates read models
type Projector struct {
	orderRepo OrderRepository
	fillRepo  FillRepository
	indexRepo IndexRepository
}

// NewProjector creates a new projector
func NewProjector(orderRepo OrderRepository, fillRepo FillRepository, indexRepo IndexRepository) *Projector {
	return &Projector{
		orderRepo: orderRepo,
		fillRepo:  fillRepo,
		indexRepo: indexRepo,
	}
}

// Project applies a single event to the read models
// Returns error if sequence validation fails or projection fails
func (p *Projector) Project(ctx context.Context, event basket.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	indexID := event.IndexID()
	sequence := event.Sequence()

	// Validate sequence continuity
	if err := p.validateSequence(ctx, indexID, sequence); err != nil {
		return err
	}

	// Apply event based on type
	switch e := event.(type) {
	case *basket.IndexCreatedEvent:
		if err := p.projectIndexCreated(ctx, e); err != nil {
			return fmt.Errorf("failed to project IndexCreated: %w", err)
		}
	case *basket.OrderQueuedEvent:
		if err := p.projectOrderQueued(ctx, e); err != nil {
			return fmt.Errorf("failed to project OrderQueued: %w", err)
		}
	case *basket.OrderAdmittedEvent:
		if err := p.projectOrderAdmitted(ctx, e); err != nil {
			return fmt.Errorf("failed to project OrderAdmitted: %w", err)
		}
	case *basket.OrderFilledEvent:
		if err := p.projectOrderFilled(ctx, e); err != nil {
			return fmt.Errorf("failed to project OrderFilled: %w", err)
		}
	case *basket.OrderCancelledEvent:
		if err := p.projectOrderCancelled(ctx, e); err != nil {
			return fmt.Errorf("failed to project OrderCancelled: %w", err)
		}
	case *basket.PricesUpdatedEvent:
		if err := p.projectPricesUpdated(ctx, e); err != nil {
			return fmt.Errorf("failed to project PricesUpdated: %w", err)
		}
	case *basket.LiquidityUpdatedEvent:
		if err := p.projectLiquidityUpdated(ctx, e); err != nil {
			return fmt.Errorf("failed to project LiquidityUpdated: %w", err)
		}
	case *basket.IndexRebalancedEvent:
		if err := p.projectIndexRebalanced(ctx, e); err != nil {
			return fmt.Errorf("failed to project IndexRebalanced: %w", err)
		}
	default:
		return fmt.Errorf("unknown event type: %T", event)
	}

	// Advance sequence cursors after successful projection.
	// IMPORTANT: the order cursor advances last. Sequence validation uses
	// orderRepo as source of truth; if it advanced first and another repo
	// failed, replay would be blocked by sequence regression.
	if err := p.fillRepo.SetLastSequence(ctx, indexID, sequence); err != nil {
		return fmt.Errorf("failed to advance fill sequence: %w", err)
	}
	if err := p.indexRepo.SetLastSequence(ctx, indexID, sequence); err != nil {
		return fmt.Errorf("failed to advance index sequence: %w", err)
	}
	if err := p.orderRepo.SetLastSequence(ctx, indexID, sequence); err != nil {
		return fmt.Errorf("failed to advance order sequence: %w", err)
	}

	return nil
}

// Restore seeds the index read model from a recovered state and advances
// every sequence cursor to its boundary, so replay can continue with the
// first event after it.
func (p *Projector) Restore(ctx context.Context, state basket.IndexState) error {
	view := &IndexView{
		IndexID:      state.IndexID,
		ListedPrice:  state.ListedPrice,
		NAV:          state.NAV,
		Composition:  holdingsFromStates(state.Composition),
		Weights:      cloneWeights(state.Weights),
		Liquidity:    liquidityFromProfiles(state.Liquidity),
		LastSequence: state.LastSequence,
	}
	if err := p.indexRepo.Save(ctx, view); err != nil {
		return fmt.Errorf("failed to restore index: %w", err)
	}
	if err := p.fillRepo.SetLastSequence(ctx, state.IndexID, state.LastSequence); err != nil {
		return fmt.Errorf("failed to restore fill sequence: %w", err)
	}
	if err := p.indexRepo.SetLastSequence(ctx, state.IndexID, state.LastSequence); err != nil {
		return fmt.Errorf("failed to restore index sequence: %w", err)
	}
	if err := p.orderRepo.SetLastSequence(ctx, state.IndexID, state.LastSequence); err != nil {
		return fmt.Errorf("failed to restore order sequence: %w", err)
	}
	return nil
}

// validateSequence checks if the event sequence is valid (must be last + 1)
func (p *Projector) validateSequence(ctx context.Context, indexID string, sequence int64) error {
	orderLastSeq, err := p.orderRepo.GetLastSequence(ctx, indexID)
	if err != nil {
		return fmt.Errorf("failed to get order last sequence: %w", err)
	}
	fillLastSeq, err := p.fillRepo.GetLastSequence(ctx, indexID)
	if err != nil {
		return fmt.Errorf("failed to get fill last sequence: %w", err)
	}
	indexLastSeq, err := p.indexRepo.GetLastSequence(ctx, indexID)
	if err != nil {
		return fmt.Errorf("failed to get index last sequence: %w", err)
	}
	if orderLastSeq != fillLastSeq || orderLastSeq != indexLastSeq {
		return fmt.Errorf("projection sequence mismatch: index=%s order_last=%d fill_last=%d index_last=%d",
			indexID, orderLastSeq, fillLastSeq, indexLastSeq)
	}
	lastSeq := orderLastSeq

	// First event for this index should have sequence 1
	if lastSeq == 0 && sequence != 1 {
		return fmt.Errorf("first event must have sequence 1, got %d", sequence)
	}

	// Subsequent events must be exactly last + 1
	if lastSeq > 0 && sequence != lastSeq+1 {
		if sequence < lastSeq+1 {
			return fmt.Errorf("sequence regression: index=%s last=%d event=%d", indexID, lastSeq, sequence)
		}
		return fmt.Errorf("sequence gap detected: index=%s last=%d event=%d", indexID, lastSeq, sequence)
	}

	return nil
}

// projectIndexCreated creates the index view
func (p *Projector) projectIndexCreated(ctx context.Context, event *basket.IndexCreatedEvent) error {
	existing, err := p.indexRepo.Get(ctx, event.IndexID())
	if err == nil {
		if existing.LastSequence >= event.Sequence() {
			return nil
		}
	} else if !errors.Is(err, ErrIndexNotFound) {
		return fmt.Errorf("failed to get index: %w", err)
	}

	view := &IndexView{
		IndexID:      event.IndexID(),
		ListedPrice:  event.ListedPrice,
		NAV:          event.NAV,
		Composition:  holdingsFromStates(event.Composition),
		Weights:      cloneWeights(event.Weights),
		Liquidity:    liquidityFromProfiles(event.Liquidity),
		UpdatedAt:    event.Timestamp(),
		LastSequence: event.Sequence(),
	}

	return p.indexRepo.Save(ctx, view)
}

// projectOrderQueued creates a new order view
func (p *Projector) projectOrderQueued(ctx context.Context, event *basket.OrderQueuedEvent) error {
	existing, err := p.orderRepo.GetByPosition(ctx, event.IndexID(), event.PositionID)
	if err == nil {
		if existing.LastSequence >= event.Sequence() {
			return nil
		}
	} else if !errors.Is(err, ErrOrderNotFound) {
		return fmt.Errorf("failed to get order: %w", err)
	}

	order := &OrderView{
		PositionID:        event.PositionID,
		IndexID:           event.IndexID(),
		Action:            string(event.Action),
		Quantity:          event.Quantity,
		IndexPrice:        event.IndexPrice,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: event.Quantity, // Initially all quantity is remaining
		FillPercentage:    decimal.Zero,
		AvgPrice:          event.IndexPrice,
		RealizedLoss:      decimal.Zero,
		Status:            OrderStatus(event.Status),
		ArrivalSeq:        event.ArrivalSeq,
		SubmittedAt:       event.Timestamp(),
		AdmittedAt:        -1,
		UpdatedAt:         event.Timestamp(),
		LastSequence:      event.Sequence(),
	}

	return p.orderRepo.Save(ctx, order)
}

// projectOrderAdmitted stamps the admission time on the order view
func (p *Projector) projectOrderAdmitted(ctx context.Context, event *basket.OrderAdmittedEvent) error {
	order, err := p.orderRepo.GetByPosition(ctx, event.IndexID(), event.PositionID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.LastSequence >= event.Sequence() {
		return nil
	}

	order.AdmittedAt = event.Timestamp()
	order.UpdatedAt = event.Timestamp()
	order.LastSequence = event.Sequence()

	return p.orderRepo.Save(ctx, order)
}

// projectOrderFilled updates the order view and records a fill report
func (p *Projector) projectOrderFilled(ctx context.Context, event *basket.OrderFilledEvent) error {
	order, err := p.orderRepo.GetByPosition(ctx, event.IndexID(), event.PositionID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}

	seq := event.Sequence()
	if order.LastSequence < seq {
		order.FilledQuantity = event.Fill.FilledQuantity
		order.RemainingQuantity = order.Quantity.Sub(event.Fill.FilledQuantity)
		order.FillPercentage = event.Fill.FillPercentage
		order.AvgPrice = event.Fill.AvgPrice
		order.RealizedLoss = event.Fill.RealizedLoss
		order.Status = OrderStatus(event.Status)
		order.UpdatedAt = event.Timestamp()
		order.LastSequence = seq

		if order.RemainingQuantity.IsNegative() {
			return fmt.Errorf("invalid fill result: negative remaining quantity")
		}
		if err := p.orderRepo.Save(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
	}

	legs := make([]FillLeg, 0, len(event.Fill.Fills))
	for _, leg := range event.Fill.Fills {
		legs = append(legs, FillLeg{
			Symbol:         leg.Symbol,
			Quantity:       leg.QuantityFilled,
			ExecutionPrice: leg.ExecutionPrice,
		})
	}

	fill := &FillReportView{
		FillID:         fmt.Sprintf("%s:%s", event.IndexID(), event.EventID()),
		IndexID:        event.IndexID(),
		PositionID:     event.PositionID,
		Legs:           legs,
		FillPercentage: event.Fill.FillPercentage,
		AvgPrice:       event.Fill.AvgPrice,
		RealizedLoss:   event.Fill.RealizedLoss,
		FilledQuantity: event.Fill.FilledQuantity,
		OccurredAt:     event.Timestamp(),
		Sequence:       seq,
	}

	return p.fillRepo.Save(ctx, fill)
}

// projectOrderCancelled updates order status to cancelled
func (p *Projector) projectOrderCancelled(ctx context.Context, event *basket.OrderCancelledEvent) error {
	order, err := p.orderRepo.GetByPosition(ctx, event.IndexID(), event.PositionID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order.LastSequence >= event.Sequence() {
		return nil
	}

	order.Status = OrderStatusCancelled
	order.FilledQuantity = event.FilledQuantity
	order.RemainingQuantity = event.RemainingQuantity
	order.RealizedLoss = event.Loss
	order.UpdatedAt = event.Timestamp()
	order.LastSequence = event.Sequence()

	return p.orderRepo.Save(ctx, order)
}

// projectPricesUpdated refreshes constituent prices and NAV
func (p *Projector) projectPricesUpdated(ctx context.Context, event *basket.PricesUpdatedEvent) error {
	view, err := p.indexRepo.Get(ctx, event.IndexID())
	if err != nil {
		return fmt.Errorf("failed to get index: %w", err)
	}
	if view.LastSequence >= event.Sequence() {
		return nil
	}

	for i := range view.Composition {
		if price, ok := event.Prices[view.Composition[i].Symbol]; ok {
			view.Composition[i].Price = price
		}
	}
	view.NAV = event.NAV
	view.UpdatedAt = event.Timestamp()
	view.LastSequence = event.Sequence()

	return p.indexRepo.Save(ctx, view)
}

// projectLiquidityUpdated replaces the liquidity constraints
func (p *Projector) projectLiquidityUpdated(ctx context.Context, event *basket.LiquidityUpdatedEvent) error {
	view, err := p.indexRepo.Get(ctx, event.IndexID())
	if err != nil {
		return fmt.Errorf("failed to get index: %w", err)
	}
	if view.LastSequence >= event.Sequence() {
		return nil
	}

	view.Liquidity = liquidityFromProfiles(event.Liquidity)
	view.UpdatedAt = event.Timestamp()
	view.LastSequence = event.Sequence()

	return p.indexRepo.Save(ctx, view)
}

// projectIndexRebalanced applies the post-rebalance state and records the
// rebalance report
func (p *Projector) projectIndexRebalanced(ctx context.Context, event *basket.IndexRebalancedEvent) error {
	view, err := p.indexRepo.Get(ctx, event.IndexID())
	if err != nil {
		return fmt.Errorf("failed to get index: %w", err)
	}

	seq := event.Sequence()
	if view.LastSequence < seq {
		view.Composition = holdingsFromStates(event.Composition)
		view.Weights = cloneWeights(event.Plan.NewWeights)
		view.NAV = event.Plan.NAVAfter
		view.UpdatedAt = event.Timestamp()
		view.LastSequence = seq

		if err := p.indexRepo.Save(ctx, view); err != nil {
			return fmt.Errorf("failed to update index: %w", err)
		}
	}

	deltas := make([]DeltaLeg, 0, len(event.Plan.Deltas))
	for _, delta := range event.Plan.Deltas {
		deltas = append(deltas, DeltaLeg{
			Symbol:         delta.Symbol,
			Delta:          delta.Delta,
			ExecutionPrice: delta.ExecutionPrice,
		})
	}

	rebalance := &RebalanceView{
		IndexID:    event.IndexID(),
		Deltas:     deltas,
		TotalCost:  event.Plan.TotalCost,
		NAVBefore:  event.Plan.NAVBefore,
		NAVAfter:   event.Plan.NAVAfter,
		OldWeights: cloneWeights(event.Plan.OldWeights),
		NewWeights: cloneWeights(event.Plan.NewWeights),
		OccurredAt: event.Timestamp(),
		Sequence:   seq,
	}

	return p.indexRepo.SaveRebalance(ctx, rebalance)
}

func holdingsFromStates(states []basket.AssetState) []AssetHolding {
	out := make([]AssetHolding, 0, len(states))
	for _, s := range states {
		out = append(out, AssetHolding{
			Symbol:   s.Symbol,
			Quantity: s.Quantity,
			RefPrice: s.RefPrice,
			Price:    s.Price,
		})
	}
	return out
}

func liquidityFromProfiles(profiles map[string]basket.LiquidityProfile) map[string]LiquidityView {
	out := make(map[string]LiquidityView, len(profiles))
	for sym, p := range profiles {
		out[sym] = LiquidityView{
			MaxFillable: p.MaxFillable,
			PriceImpact: p.PriceImpact,
		}
	}
	return out
}
