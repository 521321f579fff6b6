package basket

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Rebalance moves the index to new target weights. The operation is
// all-or-nothing: every precondition is checked before anything mutates.
// Deltas are priced through the liquidity model for cost accounting, but the
// targets themselves are always reached; rebalancing reallocates value, it
// does not create or destroy it, so NAV is preserved up to impact and fees.
func (idx *Index) Rebalance(req *RebalanceRequest) (*CommandResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.IndexID != idx.ID {
		return nil, fmt.Errorf("index mismatch: request %s, aggregate %s", req.IndexID, idx.ID)
	}

	sum := decimal.Zero
	for sym, w := range req.NewWeights {
		if w.IsNegative() {
			return nil, &ValidationError{Field: "new_weights", Reason: "negative weight for " + sym}
		}
		sum = sum.Add(w)
	}
	if sum.Sub(decimalOne).Abs().GreaterThan(weightEpsilon) {
		return nil, &ValidationError{
			Field:  "new_weights",
			Reason: fmt.Sprintf("weights must sum to 1.0, got %s", sum),
		}
	}

	// Resolve a price for every symbol in the union of old and new
	// composition before touching state. Newly introduced symbols need a
	// supplied price.
	prices := make(map[string]decimal.Decimal, len(idx.Assets)+len(req.NewWeights))
	for _, a := range idx.Assets {
		prices[a.Symbol] = a.Price
	}
	newSymbols := make([]string, 0)
	for sym, w := range req.NewWeights {
		if _, held := prices[sym]; held {
			continue
		}
		if !w.IsPositive() {
			continue
		}
		price, ok := req.Prices[sym]
		if !ok {
			return nil, &ValidationError{Field: "prices", Reason: "missing price for new symbol " + sym}
		}
		if !price.IsPositive() {
			return nil, &ValidationError{Field: "prices", Reason: "non-positive price for " + sym}
		}
		prices[sym] = price
		newSymbols = append(newSymbols, sym)
	}
	sort.Strings(newSymbols)

	navBefore := ComputeNAV(idx.Assets)

	oldWeights := make(map[string]decimal.Decimal, len(idx.Assets))
	if navBefore.IsPositive() {
		for _, a := range idx.Assets {
			oldWeights[a.Symbol] = a.Quantity.Mul(a.Price).Div(navBefore)
		}
	}

	targetFor := func(sym string) decimal.Decimal {
		w, ok := req.NewWeights[sym]
		if !ok || !w.IsPositive() {
			return decimal.Zero
		}
		return w.Mul(navBefore).Div(prices[sym])
	}

	plan := RebalancePlan{
		IndexID:    idx.ID,
		Deltas:     []AssetDelta{},
		TotalCost:  decimal.Zero,
		NAVBefore:  navBefore,
		OldWeights: oldWeights,
		NewWeights: copyWeights(req.NewWeights),
	}

	appendDelta := func(asset *Asset, delta decimal.Decimal) {
		if delta.IsZero() {
			return
		}
		action := ActionBuy
		if delta.IsNegative() {
			action = ActionSell
		}
		_, execPrice := idx.liquidity.Quote(asset, delta.Abs(), action)
		plan.Deltas = append(plan.Deltas, AssetDelta{
			Symbol:         asset.Symbol,
			Delta:          delta,
			ExecutionPrice: execPrice,
		})
		plan.TotalCost = plan.TotalCost.Add(delta.Abs().Mul(execPrice).Mul(idx.feeRate))
	}

	targets := make(map[string]decimal.Decimal, len(prices))
	for _, a := range idx.Assets {
		target := targetFor(a.Symbol)
		targets[a.Symbol] = target
		appendDelta(a, target.Sub(a.Quantity))
	}
	for _, sym := range newSymbols {
		target := targetFor(sym)
		targets[sym] = target
		appendDelta(&Asset{Symbol: sym, Price: prices[sym]}, target)
	}

	// Apply: holdings move to their targets, zero-target assets drop out,
	// new assets append in deterministic order.
	kept := make([]*Asset, 0, len(idx.Assets)+len(newSymbols))
	for _, a := range idx.Assets {
		target := targets[a.Symbol]
		if !target.IsPositive() {
			continue
		}
		a.Quantity = target
		a.RefPrice = a.Price
		kept = append(kept, a)
	}
	for _, sym := range newSymbols {
		target := targets[sym]
		if !target.IsPositive() {
			continue
		}
		kept = append(kept, &Asset{
			Symbol:   sym,
			Quantity: target,
			RefPrice: prices[sym],
			Price:    prices[sym],
		})
	}
	idx.Assets = kept
	idx.Weights = copyWeights(req.NewWeights)
	idx.NAV = ComputeNAV(idx.Assets)
	plan.NAVAfter = idx.NAV

	stored := copyPlan(plan)
	idx.lastPlan = &stored

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &IndexRebalancedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: req.Timestamp,
		Plan:           copyPlan(plan),
		Composition:    idx.composition(),
	})
	return result, nil
}
