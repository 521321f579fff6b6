package basket

import (
	"github.com/shopspring/decimal"
)

// LiquidityBook holds the per-symbol liquidity profiles of one index. Symbols
// without a profile trade unconstrained at the observed market price.
type LiquidityBook struct {
	profiles map[string]LiquidityProfile
}

// NewLiquidityBook builds a book from a profile map; nil means no constraints.
func NewLiquidityBook(profiles map[string]LiquidityProfile) *LiquidityBook {
	book := &LiquidityBook{profiles: make(map[string]LiquidityProfile, len(profiles))}
	for sym, p := range profiles {
		book.profiles[sym] = p
	}
	return book
}

// Profile returns the profile for a symbol, if constrained.
func (b *LiquidityBook) Profile(symbol string) (LiquidityProfile, bool) {
	p, ok := b.profiles[symbol]
	return p, ok
}

// Snapshot returns a copy of the profile map.
func (b *LiquidityBook) Snapshot() map[string]LiquidityProfile {
	out := make(map[string]LiquidityProfile, len(b.profiles))
	for sym, p := range b.profiles {
		out[sym] = p
	}
	return out
}

// Quote applies the linear impact model to a requested quantity of one asset:
// fillable = min(requested, max_fillable), and the execution price worsens in
// proportion to the fraction of the liquidity ceiling consumed. Buys pay up,
// sells receive less; an unconstrained symbol fills in full at market.
func (b *LiquidityBook) Quote(asset *Asset, requested decimal.Decimal, action Action) (decimal.Decimal, decimal.Decimal) {
	profile, constrained := b.profiles[asset.Symbol]
	if !constrained {
		return requested, asset.Price
	}
	if !profile.MaxFillable.IsPositive() {
		// Liquidity ceiling of zero: nothing trades.
		return decimal.Zero, asset.Price
	}

	fillable := decimal.Min(requested, profile.MaxFillable)
	fraction := fillable.Div(profile.MaxFillable)
	impact := profile.PriceImpact.Mul(fraction)

	var price decimal.Decimal
	if action == ActionSell {
		price = asset.Price.Mul(decimal.NewFromInt(1).Sub(impact))
		if price.IsNegative() {
			price = decimal.Zero
		}
	} else {
		price = asset.Price.Mul(decimal.NewFromInt(1).Add(impact))
	}
	return fillable, price
}
