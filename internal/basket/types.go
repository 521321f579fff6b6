package basket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Action represents the order action (buy/sell)
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

func (a Action) IsValid() bool {
	return a == ActionBuy || a == ActionSell
}

// OrderStatus represents order lifecycle status
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed out of s,
// except PARTIALLY_FILLED which may still be cancelled.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// CanTransitionTo implements the status transition table:
// PENDING -> PARTIALLY_FILLED | FILLED | CANCELLED
// PARTIALLY_FILLED -> CANCELLED
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPartiallyFilled ||
			next == OrderStatusFilled ||
			next == OrderStatusCancelled
	case OrderStatusPartiallyFilled:
		return next == OrderStatusCancelled
	default:
		return false
	}
}

// SubmitOrderRequest internal submit request (converted by the gateway or
// scenario runner)
type SubmitOrderRequest struct {
	PositionID int64           // Caller-assigned position ID
	IndexID    string          // Target index
	Action     Action          // BUY or SELL
	Quantity   decimal.Decimal // Requested index quantity
	IndexPrice decimal.Decimal // Requested per-unit index price
	Timestamp  int64           // Simulation time of submission
	ArrivalSeq int64           // Assigned by the engine, orders admission across indices
}

// Validate validates a submit request
func (r *SubmitOrderRequest) Validate() error {
	if r.PositionID <= 0 {
		return &ValidationError{Field: "position_id", Reason: "must be positive"}
	}
	if r.IndexID == "" {
		return &ValidationError{Field: "index_id", Reason: "required"}
	}
	if !r.Action.IsValid() {
		return &ValidationError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if !r.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if r.IndexPrice.IsNegative() {
		return &ValidationError{Field: "index_price", Reason: "must not be negative"}
	}
	return nil
}

// CancelOrderRequest cancel request
type CancelOrderRequest struct {
	PositionID int64  // Position to cancel
	IndexID    string // Owning index
	Timestamp  int64  // Simulation time of the cancel
}

// Validate validates a cancel request
func (r *CancelOrderRequest) Validate() error {
	if r.PositionID <= 0 {
		return &ValidationError{Field: "position_id", Reason: "must be positive"}
	}
	if r.IndexID == "" {
		return &ValidationError{Field: "index_id", Reason: "required"}
	}
	return nil
}

// RebalanceRequest carries new target weights plus prices for symbols the
// index does not hold yet
type RebalanceRequest struct {
	IndexID    string
	NewWeights map[string]decimal.Decimal
	Prices     map[string]decimal.Decimal // prices for newly introduced symbols
	Timestamp  int64
}

// UpdatePricesRequest carries a batch of market price observations
type UpdatePricesRequest struct {
	IndexID   string
	Prices    map[string]decimal.Decimal
	Timestamp int64
}

// Validate validates a price update request
func (r *UpdatePricesRequest) Validate() error {
	if r.IndexID == "" {
		return &ValidationError{Field: "index_id", Reason: "required"}
	}
	if len(r.Prices) == 0 {
		return &ValidationError{Field: "prices", Reason: "empty update"}
	}
	return nil
}

// SetLiquidityRequest replaces the liquidity profiles of an index
type SetLiquidityRequest struct {
	IndexID   string
	Liquidity map[string]LiquidityProfile
	Timestamp int64
}

// Validate validates a liquidity update request
func (r *SetLiquidityRequest) Validate() error {
	if r.IndexID == "" {
		return &ValidationError{Field: "index_id", Reason: "required"}
	}
	return nil
}

// AssetSpec describes one constituent at index creation,
// matching the fixture tuple [symbol, quantity, ref_price, price]
type AssetSpec struct {
	Symbol   string
	Quantity decimal.Decimal
	RefPrice decimal.Decimal
	Price    decimal.Decimal
}

// UnmarshalJSON accepts the fixture tuple [symbol, quantity, ref_price, price].
// Numeric elements may be JSON numbers or strings.
func (a *AssetSpec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parts []any
	if err := dec.Decode(&parts); err != nil {
		return fmt.Errorf("asset tuple: %w", err)
	}
	if len(parts) != 4 {
		return fmt.Errorf("asset tuple: want 4 elements, got %d", len(parts))
	}
	symbol, ok := parts[0].(string)
	if !ok {
		return fmt.Errorf("asset tuple: symbol must be a string")
	}
	quantity, err := tupleDecimal(parts[1])
	if err != nil {
		return fmt.Errorf("asset tuple %s quantity: %w", symbol, err)
	}
	refPrice, err := tupleDecimal(parts[2])
	if err != nil {
		return fmt.Errorf("asset tuple %s ref_price: %w", symbol, err)
	}
	price, err := tupleDecimal(parts[3])
	if err != nil {
		return fmt.Errorf("asset tuple %s price: %w", symbol, err)
	}
	a.Symbol = symbol
	a.Quantity = quantity
	a.RefPrice = refPrice
	a.Price = price
	return nil
}

// MarshalJSON emits the fixture tuple with decimals as strings.
func (a AssetSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{a.Symbol, a.Quantity.String(), a.RefPrice.String(), a.Price.String()})
}

func tupleDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return decimal.NewFromString(n)
	case json.Number:
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("want number or string, got %T", v)
	}
}

// LiquidityProfile bounds how much of a symbol can trade in one solver pass
// and how strongly trading it moves its price. Symbols without a profile are
// unconstrained.
type LiquidityProfile struct {
	MaxFillable decimal.Decimal
	PriceImpact decimal.Decimal
}

// CreateIndexRequest creates an index from the fixture shape
type CreateIndexRequest struct {
	IndexID     string
	ListedPrice decimal.Decimal
	Assets      []AssetSpec
	Liquidity   map[string]LiquidityProfile
	Timestamp   int64
}

// Validate validates a create request
func (r *CreateIndexRequest) Validate() error {
	if r.IndexID == "" {
		return &ValidationError{Field: "index_id", Reason: "required"}
	}
	if len(r.Assets) == 0 {
		return &ValidationError{Field: "assets", Reason: "at least one constituent required"}
	}
	seen := make(map[string]bool, len(r.Assets))
	for _, a := range r.Assets {
		if a.Symbol == "" {
			return &ValidationError{Field: "assets", Reason: "empty symbol"}
		}
		if seen[a.Symbol] {
			return &ValidationError{Field: "assets", Reason: "duplicate symbol " + a.Symbol}
		}
		seen[a.Symbol] = true
		if a.Quantity.IsNegative() {
			return &ValidationError{Field: "assets", Reason: "negative quantity for " + a.Symbol}
		}
		if !a.Price.IsPositive() {
			return &ValidationError{Field: "assets", Reason: "non-positive price for " + a.Symbol}
		}
	}
	return nil
}

// QueryOrderRequest looks up one tracked position
type QueryOrderRequest struct {
	IndexID    string
	PositionID int64
}

// QueryIndexRequest looks up the serializable state of an index
type QueryIndexRequest struct {
	IndexID string
}

// QueryPlanRequest looks up the most recent rebalance plan of an index
type QueryPlanRequest struct {
	IndexID string
}

// AssetFill records one leg of a fill
type AssetFill struct {
	Symbol         string
	QuantityFilled decimal.Decimal
	ExecutionPrice decimal.Decimal
}

// FillResult is produced once per solver invocation and attached to the order
type FillResult struct {
	PositionID     int64
	Fills          []AssetFill     // one per constituent with a positive target
	FillPercentage decimal.Decimal // 0..100
	AvgPrice       decimal.Decimal // realized per-unit index price
	RealizedLoss   decimal.Decimal // downside only, never negative
	FilledQuantity decimal.Decimal // index quantity actually executed
}

// AssetDelta records one leg of a rebalance plan
type AssetDelta struct {
	Symbol         string
	Delta          decimal.Decimal // signed: positive buys, negative sells
	ExecutionPrice decimal.Decimal // liquidity-adjusted price for the delta
}

// RebalancePlan is produced by a rebalance; the last plan per index is
// retained for reporting
type RebalancePlan struct {
	IndexID    string
	Deltas     []AssetDelta
	TotalCost  decimal.Decimal
	NAVBefore  decimal.Decimal
	NAVAfter   decimal.Decimal
	OldWeights map[string]decimal.Decimal
	NewWeights map[string]decimal.Decimal
}

// OrderStatusChange order status change
type OrderStatusChange struct {
	PositionID        int64
	OldStatus         OrderStatus
	NewStatus         OrderStatus
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
}

// CommandResult command execution result
type CommandResult struct {
	OrderStatusChanges []OrderStatusChange
	Fills              []*FillResult
	Events             []Event
}

// AssetState is the serializable state of one constituent, used by events
// and snapshots
type AssetState struct {
	Symbol   string
	Quantity decimal.Decimal
	RefPrice decimal.Decimal
	Price    decimal.Decimal
}

// Event domain event interface
type Event interface {
	EventID() string
	EventType() string
	Sequence() int64
	IndexID() string
	Timestamp() int64
}

// IndexCreatedEvent index created event
type IndexCreatedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	ListedPrice    decimal.Decimal
	Composition    []AssetState
	Weights        map[string]decimal.Decimal
	Liquidity      map[string]LiquidityProfile
	NAV            decimal.Decimal
}

func (e *IndexCreatedEvent) EventID() string   { return e.EventIDValue }
func (e *IndexCreatedEvent) EventType() string { return "IndexCreated" }
func (e *IndexCreatedEvent) Sequence() int64   { return e.SequenceValue }
func (e *IndexCreatedEvent) IndexID() string   { return e.IndexIDValue }
func (e *IndexCreatedEvent) Timestamp() int64  { return e.TimestampValue }

// OrderQueuedEvent order accepted into the admission queue
type OrderQueuedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	PositionID     int64
	Action         Action
	Quantity       decimal.Decimal
	IndexPrice     decimal.Decimal
	ArrivalSeq     int64
	Status         OrderStatus
}

func (e *OrderQueuedEvent) EventID() string   { return e.EventIDValue }
func (e *OrderQueuedEvent) EventType() string { return "OrderQueued" }
func (e *OrderQueuedEvent) Sequence() int64   { return e.SequenceValue }
func (e *OrderQueuedEvent) IndexID() string   { return e.IndexIDValue }
func (e *OrderQueuedEvent) Timestamp() int64  { return e.TimestampValue }

// OrderAdmittedEvent order passed the rate window
type OrderAdmittedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	PositionID     int64
}

func (e *OrderAdmittedEvent) EventID() string   { return e.EventIDValue }
func (e *OrderAdmittedEvent) EventType() string { return "OrderAdmitted" }
func (e *OrderAdmittedEvent) Sequence() int64   { return e.SequenceValue }
func (e *OrderAdmittedEvent) IndexID() string   { return e.IndexIDValue }
func (e *OrderAdmittedEvent) Timestamp() int64  { return e.TimestampValue }

// OrderFilledEvent solver produced a non-zero fill
type OrderFilledEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	PositionID     int64
	Fill           FillResult
	Status         OrderStatus // PARTIALLY_FILLED or FILLED
}

func (e *OrderFilledEvent) EventID() string   { return e.EventIDValue }
func (e *OrderFilledEvent) EventType() string { return "OrderFilled" }
func (e *OrderFilledEvent) Sequence() int64   { return e.SequenceValue }
func (e *OrderFilledEvent) IndexID() string   { return e.IndexIDValue }
func (e *OrderFilledEvent) Timestamp() int64  { return e.TimestampValue }

// OrderCancelledEvent order cancelled by the caller
type OrderCancelledEvent struct {
	EventIDValue      string
	SequenceValue     int64
	IndexIDValue      string
	TimestampValue    int64
	PositionID        int64
	PriorStatus       OrderStatus
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	Loss              decimal.Decimal // loss on the filled portion only
}

func (e *OrderCancelledEvent) EventID() string   { return e.EventIDValue }
func (e *OrderCancelledEvent) EventType() string { return "OrderCancelled" }
func (e *OrderCancelledEvent) Sequence() int64   { return e.SequenceValue }
func (e *OrderCancelledEvent) IndexID() string   { return e.IndexIDValue }
func (e *OrderCancelledEvent) Timestamp() int64  { return e.TimestampValue }

// PricesUpdatedEvent market prices changed; NAV recomputed
type PricesUpdatedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	Prices         map[string]decimal.Decimal
	NAV            decimal.Decimal
}

func (e *PricesUpdatedEvent) EventID() string   { return e.EventIDValue }
func (e *PricesUpdatedEvent) EventType() string { return "PricesUpdated" }
func (e *PricesUpdatedEvent) Sequence() int64   { return e.SequenceValue }
func (e *PricesUpdatedEvent) IndexID() string   { return e.IndexIDValue }
func (e *PricesUpdatedEvent) Timestamp() int64  { return e.TimestampValue }

// LiquidityUpdatedEvent liquidity constraints replaced
type LiquidityUpdatedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	Liquidity      map[string]LiquidityProfile
}

func (e *LiquidityUpdatedEvent) EventID() string   { return e.EventIDValue }
func (e *LiquidityUpdatedEvent) EventType() string { return "LiquidityUpdated" }
func (e *LiquidityUpdatedEvent) Sequence() int64   { return e.SequenceValue }
func (e *LiquidityUpdatedEvent) IndexID() string   { return e.IndexIDValue }
func (e *LiquidityUpdatedEvent) Timestamp() int64  { return e.TimestampValue }

// IndexRebalancedEvent composition moved to new target weights
type IndexRebalancedEvent struct {
	EventIDValue   string
	SequenceValue  int64
	IndexIDValue   string
	TimestampValue int64
	Plan           RebalancePlan
	Composition    []AssetState // post-rebalance composition
}

func (e *IndexRebalancedEvent) EventID() string   { return e.EventIDValue }
func (e *IndexRebalancedEvent) EventType() string { return "IndexRebalanced" }
func (e *IndexRebalancedEvent) Sequence() int64   { return e.SequenceValue }
func (e *IndexRebalancedEvent) IndexID() string   { return e.IndexIDValue }
func (e *IndexRebalancedEvent) Timestamp() int64  { return e.TimestampValue }
