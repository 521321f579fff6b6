package basket

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// weightEpsilon bounds the allowed deviation of a weight sum from 1.0.
var weightEpsilon = decimal.New(1, -6)

// Asset is one constituent of an index. Quantity is the holding per index
// share; Price the latest observed market price; RefPrice the price recorded
// at creation or last rebalance.
type Asset struct {
	Symbol   string
	Quantity decimal.Decimal
	RefPrice decimal.Decimal
	Price    decimal.Decimal
}

// Order represents a tracked position. Orders are never removed; terminal
// ones stay in the ledger for reporting.
type Order struct {
	PositionID  int64
	IndexID     string
	Action      Action
	Quantity    decimal.Decimal
	IndexPrice  decimal.Decimal
	SubmittedAt int64
	AdmittedAt  int64 // -1 until the order passes the rate window
	ArrivalSeq  int64
	Status      OrderStatus
	LastFill    *FillResult // most recent solver outcome, nil before any fill
	Loss        decimal.Decimal
}

// FilledQuantity returns the index quantity executed so far.
func (o *Order) FilledQuantity() decimal.Decimal {
	if o.LastFill == nil {
		return decimal.Zero
	}
	return o.LastFill.FilledQuantity
}

// RemainingQuantity returns the unexecuted index quantity.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity())
}

// QueuedOrder is one entry of the admission-queue snapshot.
type QueuedOrder struct {
	PositionID int64
	IndexID    string
	ArrivalSeq int64
}

// IndexState is the serializable state of an index, used for snapshots and
// recovery.
type IndexState struct {
	IndexID      string
	ListedPrice  decimal.Decimal
	NAV          decimal.Decimal
	Composition  []AssetState
	Weights      map[string]decimal.Decimal
	Liquidity    map[string]LiquidityProfile
	LastSequence int64
}

// Index is the per-index aggregate: composition, target weights, liquidity
// constraints, the order ledger, and the admission queue. All methods must be
// called from the single worker goroutine that owns the index; nothing here
// locks.
type Index struct {
	ID          string
	ListedPrice decimal.Decimal
	NAV         decimal.Decimal
	Assets      []*Asset
	Weights     map[string]decimal.Decimal

	liquidity *LiquidityBook
	orders    map[int64]*Order
	pending   []*Order // FIFO, not yet past the rate window
	admitted  []*Order // past the window, zero-filled so far, retried on ticks
	eventSeq  int64
	lastPlan  *RebalancePlan
	feeRate   decimal.Decimal // rebalance fee rate
	minValue  decimal.Decimal // minimum order notional, zero disables the check
}

// IndexOptions carries engine-level tuning applied to every index.
type IndexOptions struct {
	FeeRate       decimal.Decimal
	MinOrderValue decimal.Decimal
}

// NewIndex creates an index from the fixture shape and emits IndexCreated.
// Initial target weights are the value proportions of the composition.
func NewIndex(req *CreateIndexRequest, opts IndexOptions) (*Index, *CommandResult, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if err := validateLiquidity(req.Liquidity); err != nil {
		return nil, nil, err
	}

	idx := &Index{
		ID:          req.IndexID,
		ListedPrice: req.ListedPrice,
		Assets:      make([]*Asset, 0, len(req.Assets)),
		Weights:     make(map[string]decimal.Decimal, len(req.Assets)),
		liquidity:   NewLiquidityBook(req.Liquidity),
		orders:      make(map[int64]*Order),
		feeRate:     opts.FeeRate,
		minValue:    opts.MinOrderValue,
	}

	for _, spec := range req.Assets {
		idx.Assets = append(idx.Assets, &Asset{
			Symbol:   spec.Symbol,
			Quantity: spec.Quantity,
			RefPrice: spec.RefPrice,
			Price:    spec.Price,
		})
	}
	idx.NAV = ComputeNAV(idx.Assets)
	if idx.NAV.IsPositive() {
		for _, a := range idx.Assets {
			idx.Weights[a.Symbol] = a.Quantity.Mul(a.Price).Div(idx.NAV)
		}
	}

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &IndexCreatedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: req.Timestamp,
		ListedPrice:    idx.ListedPrice,
		Composition:    idx.composition(),
		Weights:        copyWeights(idx.Weights),
		Liquidity:      idx.liquidity.Snapshot(),
		NAV:            idx.NAV,
	})
	return idx, result, nil
}

func newCommandResult() *CommandResult {
	return &CommandResult{
		OrderStatusChanges: []OrderStatusChange{},
		Fills:              []*FillResult{},
		Events:             []Event{},
	}
}

func (idx *Index) nextEventSequence() int64 {
	idx.eventSeq++
	return idx.eventSeq
}

// LastSequence returns the sequence of the most recent event.
func (idx *Index) LastSequence() int64 {
	return idx.eventSeq
}

// Submit validates a buy/sell request, creates the order as PENDING and
// appends it to the admission queue. No fill happens here; fills run on
// processing ticks only.
func (idx *Index) Submit(req *SubmitOrderRequest) (*CommandResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IndexID != idx.ID {
		return nil, fmt.Errorf("index mismatch: request %s, aggregate %s", req.IndexID, idx.ID)
	}
	if _, exists := idx.orders[req.PositionID]; exists {
		return nil, &ValidationError{Field: "position_id", Reason: fmt.Sprintf("already used: %d", req.PositionID)}
	}
	if idx.minValue.IsPositive() {
		notional := req.Quantity.Mul(req.IndexPrice)
		if notional.LessThan(idx.minValue) {
			return nil, &ValidationError{Field: "quantity", Reason: "below minimum order size"}
		}
	}

	order := &Order{
		PositionID:  req.PositionID,
		IndexID:     req.IndexID,
		Action:      req.Action,
		Quantity:    req.Quantity,
		IndexPrice:  req.IndexPrice,
		SubmittedAt: req.Timestamp,
		AdmittedAt:  -1,
		ArrivalSeq:  req.ArrivalSeq,
		Status:      OrderStatusPending,
		Loss:        decimal.Zero,
	}
	idx.orders[order.PositionID] = order
	idx.pending = append(idx.pending, order)

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &OrderQueuedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: req.Timestamp,
		PositionID:     order.PositionID,
		Action:         order.Action,
		Quantity:       order.Quantity,
		IndexPrice:     order.IndexPrice,
		ArrivalSeq:     order.ArrivalSeq,
		Status:         order.Status,
	})
	return result, nil
}

// Cancel cancels an order. Cancels bypass the rate window and the liquidity
// model entirely; the loss reported covers the filled portion only.
func (idx *Index) Cancel(req *CancelOrderRequest) (*CommandResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order, exists := idx.orders[req.PositionID]
	if !exists {
		return nil, &NotFoundError{Kind: "order", Key: fmt.Sprintf("%d", req.PositionID)}
	}
	if !order.Status.CanTransitionTo(OrderStatusCancelled) {
		return nil, &InvalidStateError{
			PositionID: order.PositionID,
			Current:    order.Status,
			Operation:  "cancel",
		}
	}

	idx.removeQueued(order)

	result := newCommandResult()
	oldStatus := order.Status
	order.Status = OrderStatusCancelled
	result.OrderStatusChanges = append(result.OrderStatusChanges, OrderStatusChange{
		PositionID:        order.PositionID,
		OldStatus:         oldStatus,
		NewStatus:         OrderStatusCancelled,
		FilledQuantity:    order.FilledQuantity(),
		RemainingQuantity: order.RemainingQuantity(),
	})

	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &OrderCancelledEvent{
		EventIDValue:      fmt.Sprintf("evt_%d", seq),
		SequenceValue:     seq,
		IndexIDValue:      idx.ID,
		TimestampValue:    req.Timestamp,
		PositionID:        order.PositionID,
		PriorStatus:       oldStatus,
		FilledQuantity:    order.FilledQuantity(),
		RemainingQuantity: order.RemainingQuantity(),
		Loss:              order.Loss,
	})
	return result, nil
}

// removeQueued drops an order from whichever queue currently holds it.
func (idx *Index) removeQueued(order *Order) {
	for i, o := range idx.pending {
		if o.PositionID == order.PositionID {
			idx.pending = append(idx.pending[:i], idx.pending[i+1:]...)
			return
		}
	}
	for i, o := range idx.admitted {
		if o.PositionID == order.PositionID {
			idx.admitted = append(idx.admitted[:i], idx.admitted[i+1:]...)
			return
		}
	}
}

// UpdatePrices applies new market prices and recomputes NAV. Every symbol is
// validated before anything mutates, so an unknown symbol leaves the index
// untouched.
func (idx *Index) UpdatePrices(prices map[string]decimal.Decimal, ts int64) (*CommandResult, error) {
	if len(prices) == 0 {
		return nil, &ValidationError{Field: "prices", Reason: "empty update"}
	}
	bySymbol := make(map[string]*Asset, len(idx.Assets))
	for _, a := range idx.Assets {
		bySymbol[a.Symbol] = a
	}
	for sym, price := range prices {
		if _, ok := bySymbol[sym]; !ok {
			return nil, &NotFoundError{Kind: "symbol", Key: sym}
		}
		if !price.IsPositive() {
			return nil, &ValidationError{Field: "prices", Reason: "non-positive price for " + sym}
		}
	}

	for sym, price := range prices {
		bySymbol[sym].Price = price
	}
	idx.NAV = ComputeNAV(idx.Assets)

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &PricesUpdatedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: ts,
		Prices:         copyWeights(prices),
		NAV:            idx.NAV,
	})
	return result, nil
}

// SetLiquidity replaces the liquidity constraints for this index.
func (idx *Index) SetLiquidity(profiles map[string]LiquidityProfile, ts int64) (*CommandResult, error) {
	if err := validateLiquidity(profiles); err != nil {
		return nil, err
	}
	idx.liquidity = NewLiquidityBook(profiles)

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &LiquidityUpdatedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: ts,
		Liquidity:      idx.liquidity.Snapshot(),
	})
	return result, nil
}

func validateLiquidity(profiles map[string]LiquidityProfile) error {
	for sym, p := range profiles {
		if p.MaxFillable.IsNegative() {
			return &ValidationError{Field: "liquidity", Reason: "negative max_fillable for " + sym}
		}
		if p.PriceImpact.IsNegative() {
			return &ValidationError{Field: "liquidity", Reason: "negative price_impact for " + sym}
		}
	}
	return nil
}

// PendingHead returns the next order waiting for admission, if any.
func (idx *Index) PendingHead() (*Order, bool) {
	if len(idx.pending) == 0 {
		return nil, false
	}
	return idx.pending[0], true
}

// AdmitHead pops the queue head past the rate window and runs the solver on
// it. The caller has already reserved window capacity. A zero fill keeps the
// order PENDING on the admitted list for retry on later ticks.
func (idx *Index) AdmitHead(ts int64) (*CommandResult, error) {
	if len(idx.pending) == 0 {
		return nil, fmt.Errorf("admission queue is empty")
	}
	order := idx.pending[0]
	idx.pending = idx.pending[1:]
	order.AdmittedAt = ts

	result := newCommandResult()
	seq := idx.nextEventSequence()
	result.Events = append(result.Events, &OrderAdmittedEvent{
		EventIDValue:   fmt.Sprintf("evt_%d", seq),
		SequenceValue:  seq,
		IndexIDValue:   idx.ID,
		TimestampValue: ts,
		PositionID:     order.PositionID,
	})

	idx.solveOrder(order, ts, result)
	return result, nil
}

// RetryAdmitted re-runs the solver over orders that were admitted earlier but
// have not filled at all yet. Admission capacity is consumed once per order,
// not per retry. Returns an empty result when nothing is waiting, making
// back-to-back ticks idempotent.
func (idx *Index) RetryAdmitted(ts int64) *CommandResult {
	result := newCommandResult()
	if len(idx.admitted) == 0 {
		return result
	}
	retry := idx.admitted
	idx.admitted = nil
	for _, order := range retry {
		idx.solveOrder(order, ts, result)
	}
	return result
}

// QueuedOrders returns the not-yet-admitted orders in arrival order.
func (idx *Index) QueuedOrders() []QueuedOrder {
	out := make([]QueuedOrder, 0, len(idx.pending))
	for _, o := range idx.pending {
		out = append(out, QueuedOrder{
			PositionID: o.PositionID,
			IndexID:    o.IndexID,
			ArrivalSeq: o.ArrivalSeq,
		})
	}
	return out
}

// PendingCount returns the number of orders still waiting for admission.
func (idx *Index) PendingCount() int {
	return len(idx.pending)
}

// Order returns a copy of a tracked order.
func (idx *Index) Order(positionID int64) (Order, error) {
	order, exists := idx.orders[positionID]
	if !exists {
		return Order{}, &NotFoundError{Kind: "order", Key: fmt.Sprintf("%d", positionID)}
	}
	snapshot := *order
	if order.LastFill != nil {
		fill := *order.LastFill
		fill.Fills = append([]AssetFill(nil), order.LastFill.Fills...)
		snapshot.LastFill = &fill
	}
	return snapshot, nil
}

// LastPlan returns the most recent rebalance plan, if any.
func (idx *Index) LastPlan() (RebalancePlan, error) {
	if idx.lastPlan == nil {
		return RebalancePlan{}, &NotFoundError{Kind: "rebalance plan", Key: idx.ID}
	}
	return copyPlan(*idx.lastPlan), nil
}

// State captures the full serializable state of the index.
func (idx *Index) State() IndexState {
	return IndexState{
		IndexID:      idx.ID,
		ListedPrice:  idx.ListedPrice,
		NAV:          idx.NAV,
		Composition:  idx.composition(),
		Weights:      copyWeights(idx.Weights),
		Liquidity:    idx.liquidity.Snapshot(),
		LastSequence: idx.eventSeq,
	}
}

func (idx *Index) composition() []AssetState {
	out := make([]AssetState, 0, len(idx.Assets))
	for _, a := range idx.Assets {
		out = append(out, AssetState{
			Symbol:   a.Symbol,
			Quantity: a.Quantity,
			RefPrice: a.RefPrice,
			Price:    a.Price,
		})
	}
	return out
}

func (idx *Index) assetBySymbol(symbol string) (*Asset, bool) {
	for _, a := range idx.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return nil, false
}

func copyWeights(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyPlan(plan RebalancePlan) RebalancePlan {
	plan.Deltas = append([]AssetDelta(nil), plan.Deltas...)
	plan.OldWeights = copyWeights(plan.OldWeights)
	plan.NewWeights = copyWeights(plan.NewWeights)
	return plan
}
