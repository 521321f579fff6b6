package basket

import (
	"github.com/shopspring/decimal"
)

// ComputeNAV returns the net asset value of a composition: the sum of
// quantity held times current market price across constituents. Pure function
// of asset state; callers store the result into the index.
func ComputeNAV(assets []*Asset) decimal.Decimal {
	nav := decimal.Zero
	for _, a := range assets {
		nav = nav.Add(a.Quantity.Mul(a.Price))
	}
	return nav
}
