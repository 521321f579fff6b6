// Package scenario replays timeline fixtures against a fresh engine and
// checks the expected outcomes they declare. The replay command and the
// regression tests share the same fixture format.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// LiquidityFixture mirrors one liquidity profile entry of a fixture file.
type LiquidityFixture struct {
	MaxFillable decimal.Decimal `json:"max_fillable"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// IndexFixture seeds one index before the timeline runs. Assets use the
// [symbol, quantity, ref_price, price] tuple form.
type IndexFixture struct {
	ID        string                      `json:"id"`
	Price     decimal.Decimal             `json:"price"`
	Assets    []basket.AssetSpec          `json:"assets"`
	Liquidity map[string]LiquidityFixture `json:"liquidity_info,omitempty"`
}

// RateLimitFixture overrides the admission window of the scenario engine.
type RateLimitFixture struct {
	Cap    int    `json:"cap"`
	Window int64  `json:"window"`
	Scope  string `json:"scope,omitempty"`
}

// ActionParams carries the arguments of a timeline action. Assertion-only
// events may still set position_id and index_id to pick their target.
type ActionParams struct {
	IndexID    string                      `json:"index_id,omitempty"`
	PositionID int64                       `json:"position_id,omitempty"`
	Quantity   decimal.Decimal             `json:"quantity,omitempty"`
	IndexPrice decimal.Decimal             `json:"index_price,omitempty"`
	Weights    map[string]decimal.Decimal  `json:"weights,omitempty"`
	Prices     map[string]decimal.Decimal  `json:"prices,omitempty"`
	Liquidity  map[string]LiquidityFixture `json:"liquidity,omitempty"`
}

// TimelineEvent is one step of a scenario. Within a step, asset_prices apply
// first, then the action runs repeat times, then the expected_* assertions
// are checked.
type TimelineEvent struct {
	Timestamp   int64                      `json:"timestamp"`
	Action      string                     `json:"action,omitempty"`
	Params      *ActionParams              `json:"params,omitempty"`
	Repeat      int                        `json:"repeat,omitempty"`
	AssetPrices map[string]decimal.Decimal `json:"asset_prices,omitempty"`

	ExpectedStatus         string           `json:"expected_status,omitempty"`
	ExpectedFillPercentage *decimal.Decimal `json:"expected_fill_percentage,omitempty"`
	ExpectedNAV            *decimal.Decimal `json:"expected_nav,omitempty"`
	ExpectedQueue          []string         `json:"expected_queue,omitempty"`
	ExpectedPartialFill    *bool            `json:"expected_partial_fill,omitempty"`
	ExpectedError          string           `json:"expected_error,omitempty"`
	ExpectedLossPositive   *bool            `json:"expected_loss_positive,omitempty"`
}

// Scenario is a full fixture file: engine overrides, seed indices, and the
// timeline to replay.
type Scenario struct {
	Name          string            `json:"name"`
	RateLimit     *RateLimitFixture `json:"rate_limit,omitempty"`
	FeeRate       *decimal.Decimal  `json:"fee_rate,omitempty"`
	MinOrderValue *decimal.Decimal  `json:"min_order_value,omitempty"`
	Indices       []IndexFixture    `json:"indices"`
	Timeline      []TimelineEvent   `json:"timeline"`
}

const (
	ActionBuy          = "buy"
	ActionSell         = "sell"
	ActionCancel       = "cancel"
	ActionRebalance    = "rebalance"
	ActionProcessQueue = "process_queue"
	ActionSetLiquidity = "set_liquidity"
)

// Load reads and validates a scenario fixture file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario fixture.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the structural invariants of a fixture before any of it
// reaches the engine.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name required")
	}
	if len(s.Indices) == 0 {
		return fmt.Errorf("scenario %q: at least one index required", s.Name)
	}
	seen := make(map[string]bool, len(s.Indices))
	for i, fix := range s.Indices {
		if fix.ID == "" {
			return fmt.Errorf("scenario %q: index %d missing id", s.Name, i)
		}
		if seen[fix.ID] {
			return fmt.Errorf("scenario %q: duplicate index id %s", s.Name, fix.ID)
		}
		seen[fix.ID] = true
		if len(fix.Assets) == 0 {
			return fmt.Errorf("scenario %q: index %s has no assets", s.Name, fix.ID)
		}
	}
	for i, ev := range s.Timeline {
		if err := validateEvent(ev); err != nil {
			return fmt.Errorf("scenario %q: timeline[%d]: %w", s.Name, i, err)
		}
	}
	return nil
}

func validateEvent(ev TimelineEvent) error {
	if ev.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative")
	}
	if ev.ExpectedError != "" && (ev.Action == "" || ev.Action == ActionProcessQueue) {
		return fmt.Errorf("expected_error requires a command action")
	}
	switch ev.Action {
	case "":
		// Assertion-only or price-only step.
	case ActionBuy, ActionSell, ActionProcessQueue:
	case ActionCancel:
		if ev.Params == nil || ev.Params.PositionID <= 0 {
			return fmt.Errorf("cancel requires params.position_id")
		}
	case ActionRebalance:
		if ev.Params == nil || len(ev.Params.Weights) == 0 {
			return fmt.Errorf("rebalance requires params.weights")
		}
	case ActionSetLiquidity:
		if ev.Params == nil || len(ev.Params.Liquidity) == 0 {
			return fmt.Errorf("set_liquidity requires params.liquidity")
		}
	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
	return nil
}

func (f LiquidityFixture) profile() basket.LiquidityProfile {
	return basket.LiquidityProfile{
		MaxFillable: f.MaxFillable,
		PriceImpact: f.PriceImpact,
	}
}

func liquidityProfiles(fixtures map[string]LiquidityFixture) map[string]basket.LiquidityProfile {
	if len(fixtures) == 0 {
		return nil
	}
	profiles := make(map[string]basket.LiquidityProfile, len(fixtures))
	for symbol, f := range fixtures {
		profiles[symbol] = f.profile()
	}
	return profiles
}
