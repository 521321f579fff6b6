package treasury

// Service defines the treasury service interface
type Service interface {
	// ReserveOnSubmit earmarks the requested notional when an order is
	// accepted into the queue. Sells carry a zero reservation; their cash
	// effect is recorded at settlement.
	ReserveOnSubmit(intent ReserveIntent) error

	// SettleOnFill applies the cash effect of an executed fill: buys
	// consume their reservation, sells book proceeds. Idempotent per
	// position.
	SettleOnFill(intent SettleIntent) error

	// ReleaseOnCancel returns the unspent remainder of a reservation.
	// Unknown positions are a no-op.
	ReleaseOnCancel(intent ReleaseIntent) error

	// GetBalance returns the aggregated cash flows for an index.
	GetBalance(indexID string) (Balance, error)
}
