package api

import (
	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// CreateIndexRequest represents the request body for listing an index.
// Assets use the fixture tuple [symbol, quantity, ref_price, price].
type CreateIndexRequest struct {
	IndexID     string                         `json:"index_id"`                 // Index identifier
	ListedPrice string                         `json:"listed_price"`             // Listed per-share price as decimal string
	Assets      []basket.AssetSpec             `json:"assets"`                   // Composition tuples
	Liquidity   map[string]LiquidityProfileDTO `json:"liquidity_info,omitempty"` // Optional per-symbol liquidity
	Timestamp   int64                          `json:"timestamp"`                // Simulation time of creation
}

// SubmitOrderRequest represents the request body for submitting an order
type SubmitOrderRequest struct {
	PositionID     int64  `json:"position_id"`               // Caller-assigned position ID, derived from the idempotency key when zero
	IndexID        string `json:"index_id"`                  // Target index
	Action         string `json:"action"`                    // "BUY" or "SELL"
	Quantity       string `json:"quantity"`                  // Index quantity as decimal string
	IndexPrice     string `json:"index_price"`               // Requested per-unit price as decimal string
	Timestamp      int64  `json:"timestamp"`                 // Simulation time of submission
	IdempotencyKey string `json:"idempotency_key,omitempty"` // Body fallback for the Idempotency-Key header
}

// UpdatePricesRequest represents the request body for a batch price update
type UpdatePricesRequest struct {
	Prices    map[string]string `json:"prices"`    // Symbol to price, decimal strings
	Timestamp int64             `json:"timestamp"` // Simulation time of the observation
}

// SetLiquidityRequest represents the request body for replacing liquidity profiles
type SetLiquidityRequest struct {
	Liquidity map[string]LiquidityProfileDTO `json:"liquidity_info"` // Symbol to profile
	Timestamp int64                          `json:"timestamp"`      // Simulation time of the update
}

// RebalanceRequest represents the request body for a rebalance
type RebalanceRequest struct {
	NewWeights map[string]string `json:"new_weights"`      // Target weights, must sum to 1
	Prices     map[string]string `json:"prices,omitempty"` // Prices for newly introduced symbols
	Timestamp  int64             `json:"timestamp"`        // Simulation time of the rebalance
}

// TickRequest represents the request body for advancing simulated time
type TickRequest struct {
	Timestamp int64 `json:"timestamp"` // New simulation time
}

// LiquidityProfileDTO represents one per-symbol liquidity constraint
type LiquidityProfileDTO struct {
	MaxFillable string `json:"max_fillable"` // Max quantity tradable per solver pass
	PriceImpact string `json:"price_impact"` // Price impact coefficient
}

// AssetView represents one constituent in an index view
type AssetView struct {
	Symbol   string `json:"symbol"`    // Constituent symbol
	Quantity string `json:"quantity"`  // Holding per index share
	RefPrice string `json:"ref_price"` // Reference price at creation or last rebalance
	Price    string `json:"price"`     // Latest market price
}

// IndexResponse represents the serializable view of an index
type IndexResponse struct {
	IndexID      string                         `json:"index_id"`                 // Index identifier
	ListedPrice  string                         `json:"listed_price"`             // Listed per-share price
	NAV          string                         `json:"nav"`                      // Net asset value
	Composition  []AssetView                    `json:"composition"`              // Current constituents
	Weights      map[string]string              `json:"weights"`                  // Target weights
	Liquidity    map[string]LiquidityProfileDTO `json:"liquidity_info,omitempty"` // Liquidity constraints
	LastSequence int64                          `json:"last_sequence"`            // Last emitted event sequence
}

// SubmitOrderResponse represents the response for submitting an order
type SubmitOrderResponse struct {
	PositionID int64  `json:"position_id"` // Position ID
	IndexID    string `json:"index_id"`    // Target index
	Action     string `json:"action"`      // Order action
	Quantity   string `json:"quantity"`    // Requested quantity
	IndexPrice string `json:"index_price"` // Requested per-unit price
	Status     string `json:"status"`      // Status after submit, always PENDING
	ArrivalSeq int64  `json:"arrival_seq"` // Cross-index arrival sequence
}

// CancelOrderResponse represents the response for cancelling an order
type CancelOrderResponse struct {
	PositionID   int64  `json:"position_id"`   // Position ID
	IndexID      string `json:"index_id"`      // Owning index
	Status       string `json:"status"`        // Status after cancellation
	PriorStatus  string `json:"prior_status"`  // Status before cancellation
	FilledQty    string `json:"filled_qty"`    // Quantity executed before the cancel
	RemainingQty string `json:"remaining_qty"` // Quantity released by the cancel
	Loss         string `json:"loss"`          // Loss realized on the filled portion
}

// OrderResponse represents the view of one tracked position
type OrderResponse struct {
	PositionID   int64  `json:"position_id"`   // Position ID
	IndexID      string `json:"index_id"`      // Owning index
	Action       string `json:"action"`        // Order action
	Quantity     string `json:"quantity"`      // Requested quantity
	IndexPrice   string `json:"index_price"`   // Requested per-unit price
	Status       string `json:"status"`        // Current status
	SubmittedAt  int64  `json:"submitted_at"`  // Simulation time of submission
	AdmittedAt   int64  `json:"admitted_at"`   // Simulation time of admission, -1 while queued
	ArrivalSeq   int64  `json:"arrival_seq"`   // Cross-index arrival sequence
	FilledQty    string `json:"filled_qty"`    // Quantity executed so far
	RemainingQty string `json:"remaining_qty"` // Quantity not yet executed
	Loss         string `json:"loss"`          // Realized loss so far
}

// FillLegDTO represents one executed leg of a fill
type FillLegDTO struct {
	Symbol         string `json:"symbol"`          // Constituent symbol
	QuantityFilled string `json:"quantity_filled"` // Quantity executed on this leg
	ExecutionPrice string `json:"execution_price"` // Liquidity-adjusted execution price
}

// FillReportResponse represents the fill report of one position
type FillReportResponse struct {
	PositionID     int64        `json:"position_id"`     // Position ID
	IndexID        string       `json:"index_id"`        // Owning index
	Status         string       `json:"status"`          // Current status
	FillPercentage string       `json:"fill_percentage"` // 0..100
	AvgPrice       string       `json:"avg_price"`       // Realized per-unit index price
	Loss           string       `json:"loss"`            // Realized loss
	FilledQty      string       `json:"filled_qty"`      // Quantity executed
	Fills          []FillLegDTO `json:"fills,omitempty"` // Per-constituent legs of the last fill
}

// AssetDeltaDTO represents one leg of a rebalance plan
type AssetDeltaDTO struct {
	Symbol         string `json:"symbol"`          // Constituent symbol
	Delta          string `json:"delta"`           // Signed quantity change
	ExecutionPrice string `json:"execution_price"` // Liquidity-adjusted price for the delta
}

// RebalancePlanResponse represents a rebalance plan
type RebalancePlanResponse struct {
	IndexID    string            `json:"index_id"`    // Index identifier
	Deltas     []AssetDeltaDTO   `json:"deltas"`      // Per-constituent changes
	TotalCost  string            `json:"total_cost"`  // Rebalancing fee on traded turnover
	NAVBefore  string            `json:"nav_before"`  // NAV at the old composition
	NAVAfter   string            `json:"nav_after"`   // NAV at the new composition
	OldWeights map[string]string `json:"old_weights"` // Weights before the rebalance
	NewWeights map[string]string `json:"new_weights"` // Weights after the rebalance
}

// UpdatePricesResponse represents the response for a price update
type UpdatePricesResponse struct {
	IndexID string `json:"index_id"` // Index identifier
	NAV     string `json:"nav"`      // NAV recomputed from the new prices
}

// SetLiquidityResponse represents the response for a liquidity update
type SetLiquidityResponse struct {
	IndexID   string                         `json:"index_id"`       // Index identifier
	Liquidity map[string]LiquidityProfileDTO `json:"liquidity_info"` // Profiles now in force
}

// TickFillDTO represents one fill produced by a tick
type TickFillDTO struct {
	PositionID     int64  `json:"position_id"`     // Position ID
	FilledQty      string `json:"filled_qty"`      // Quantity executed on this pass
	FillPercentage string `json:"fill_percentage"` // 0..100
	AvgPrice       string `json:"avg_price"`       // Realized per-unit index price
}

// TickResponse represents the outcome of one processing pass
type TickResponse struct {
	Timestamp int64         `json:"timestamp"` // Simulation time of the pass
	Admitted  []int64       `json:"admitted"`  // Positions that passed the window
	Fills     []TickFillDTO `json:"fills"`     // Fills produced, including retries
}

// QueuedOrderDTO represents one entry of the admission queue snapshot
type QueuedOrderDTO struct {
	PositionID int64  `json:"position_id"` // Position ID
	IndexID    string `json:"index_id"`    // Owning index
	ArrivalSeq int64  `json:"arrival_seq"` // Cross-index arrival sequence
}

// QueueResponse represents the admission queue snapshot
type QueueResponse struct {
	Orders []QueuedOrderDTO `json:"orders"` // Waiting orders in arrival order
}

// TreasuryResponse represents the cash accounting view of one index
type TreasuryResponse struct {
	IndexID    string `json:"index_id"`    // Index identifier
	Reserved   string `json:"reserved"`    // Earmarked by open buy orders
	Spent      string `json:"spent"`       // Paid out on executed buy legs
	Released   string `json:"released"`    // Returned by cancels
	Proceeds   string `json:"proceeds"`    // Received from executed sell legs
	NetOutflow string `json:"net_outflow"` // Spent minus proceeds
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    string `json:"code"`    // Error code
	Message string `json:"message"` // Error message
}
