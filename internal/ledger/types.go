package ledger

import (
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of a position in the read model
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// OrderView represents the read model for a tracked position
type OrderView struct {
	PositionID        int64           `json:"position_id"`
	IndexID           string          `json:"index_id"`
	Action            string          `json:"action"` // "BUY" or "SELL"
	Quantity          decimal.Decimal `json:"quantity"`
	IndexPrice        decimal.Decimal `json:"index_price"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	FillPercentage    decimal.Decimal `json:"fill_percentage"`
	AvgPrice          decimal.Decimal `json:"avg_price"`
	RealizedLoss      decimal.Decimal `json:"realized_loss"`
	Status            OrderStatus     `json:"status"`
	ArrivalSeq        int64           `json:"arrival_seq"`
	SubmittedAt       int64           `json:"submitted_at"`
	AdmittedAt        int64           `json:"admitted_at"` // -1 while still queued
	UpdatedAt         int64           `json:"updated_at"`
	LastSequence      int64           `json:"last_sequence"` // Last event sequence that updated this position
}

// FillLeg is one executed constituent leg inside a fill report
type FillLeg struct {
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
}

// FillReportView represents the read model for one solver execution
type FillReportView struct {
	FillID         string          `json:"fill_id"` // "<index_id>:<event_id>"
	IndexID        string          `json:"index_id"`
	PositionID     int64           `json:"position_id"`
	Legs           []FillLeg       `json:"legs"`
	FillPercentage decimal.Decimal `json:"fill_percentage"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	RealizedLoss   decimal.Decimal `json:"realized_loss"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	OccurredAt     int64           `json:"occurred_at"`
	Sequence       int64           `json:"sequence"` // Event sequence number
}

// DeltaLeg is one signed adjustment inside a rebalance report
type DeltaLeg struct {
	Symbol         string          `json:"symbol"`
	Delta          decimal.Decimal `json:"delta"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
}

// RebalanceView represents the read model for one executed rebalance
type RebalanceView struct {
	IndexID    string                     `json:"index_id"`
	Deltas     []DeltaLeg                 `json:"deltas"`
	TotalCost  decimal.Decimal            `json:"total_cost"`
	NAVBefore  decimal.Decimal            `json:"nav_before"`
	NAVAfter   decimal.Decimal            `json:"nav_after"`
	OldWeights map[string]decimal.Decimal `json:"old_weights"`
	NewWeights map[string]decimal.Decimal `json:"new_weights"`
	OccurredAt int64                      `json:"occurred_at"`
	Sequence   int64                      `json:"sequence"`
}

// AssetHolding is one constituent inside the index read model
type AssetHolding struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	RefPrice decimal.Decimal `json:"ref_price"`
	Price    decimal.Decimal `json:"price"`
}

// LiquidityView mirrors the liquidity constraints of one symbol
type LiquidityView struct {
	MaxFillable decimal.Decimal `json:"max_fillable"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// IndexView represents the read model for an index
type IndexView struct {
	IndexID      string                     `json:"index_id"`
	ListedPrice  decimal.Decimal            `json:"listed_price"`
	NAV          decimal.Decimal            `json:"nav"`
	Composition  []AssetHolding             `json:"composition"`
	Weights      map[string]decimal.Decimal `json:"weights"`
	Liquidity    map[string]LiquidityView   `json:"liquidity"`
	UpdatedAt    int64                      `json:"updated_at"`
	LastSequence int64                      `json:"last_sequence"`
}
