package basket

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// solveOrder converts an admitted order into per-asset fills. The requested
// index quantity decomposes into per-asset targets by value proportion
// (target = quantity * weight * nav / price); the basket fills only as far as
// its most liquidity-constrained leg, since a partial basket cannot be
// synthesized from an incomplete set of legs. A zero fill keeps the order
// PENDING and parks it for retry; any positive fill is terminal for this
// admission attempt.
func (idx *Index) solveOrder(order *Order, ts int64, result *CommandResult) {
	type leg struct {
		asset  *Asset
		target decimal.Decimal
	}

	legs := make([]leg, 0, len(idx.Assets))
	minRatio := decimalOne
	for _, a := range idx.Assets {
		w, ok := idx.Weights[a.Symbol]
		if !ok || !w.IsPositive() {
			continue
		}
		target := order.Quantity.Mul(w).Mul(idx.NAV).Div(a.Price)
		if !target.IsPositive() {
			continue
		}
		legs = append(legs, leg{asset: a, target: target})

		fillable, _ := idx.liquidity.Quote(a, target, order.Action)
		ratio := fillable.Div(target)
		if ratio.LessThan(minRatio) {
			minRatio = ratio
		}
	}

	if len(legs) > 0 && minRatio.IsZero() {
		// Nothing tradable this tick; the order stays PENDING and is
		// retried once liquidity recovers.
		idx.admitted = append(idx.admitted, order)
		return
	}

	filledQty := order.Quantity.Mul(minRatio)
	fill := &FillResult{
		PositionID:     order.PositionID,
		Fills:          make([]AssetFill, 0, len(legs)),
		FillPercentage: minRatio.Mul(decimalHundred),
		FilledQuantity: filledQty,
		AvgPrice:       order.IndexPrice,
		RealizedLoss:   decimal.Zero,
	}

	if len(legs) > 0 {
		executedValue := decimal.Zero
		for _, l := range legs {
			fillQty := l.target.Mul(minRatio)
			_, execPrice := idx.liquidity.Quote(l.asset, fillQty, order.Action)
			fill.Fills = append(fill.Fills, AssetFill{
				Symbol:         l.asset.Symbol,
				QuantityFilled: fillQty,
				ExecutionPrice: execPrice,
			})
			executedValue = executedValue.Add(fillQty.Mul(execPrice))
		}
		fill.AvgPrice = executedValue.Div(filledQty)

		// Downside only: favorable execution clamps to zero loss.
		diff := fill.AvgPrice.Sub(order.IndexPrice)
		if order.Action == ActionSell {
			diff = order.IndexPrice.Sub(fill.AvgPrice)
		}
		if diff.IsPositive() {
			fill.RealizedLoss = diff.Mul(filledQty)
		}
	}

	order.LastFill = fill
	order.Loss = fill.RealizedLoss
	result.Fills = append(result.Fills, fill)

	newStatus := OrderStatusPartiallyFilled
	if minRatio.Equal(decimalOne) {
		newStatus = OrderStatusFilled
	}
	idx.updateOrderStatus(order, newStatus, result)

	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &OrderFilledEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: ts,
		PositionID:     order.PositionID,
		Fill:           *fill,
		Status:         order.Status,
	})

	idx.NAV = ComputeNAV(idx.Assets)
}

// updateOrderStatus applies a status transition and records the change.
func (idx *Index) updateOrderStatus(order *Order, newStatus OrderStatus, result *CommandResult) {
	if order.Status == newStatus {
		return
	}
	oldStatus := order.Status
	order.Status = newStatus
	result.OrderStatusChanges = append(result.OrderStatusChanges, OrderStatusChange{
		PositionID:        order.PositionID,
		OldStatus:         oldStatus,
		NewStatus:         newStatus,
		FilledQuantity:    order.FilledQuantity(),
		RemainingQuantity: order.RemainingQuantity(),
	})
}
