package treasury

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReserveOnSubmit_BUY(t *testing.T) {
	svc := NewMemoryService()

	intent := ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("9000000"),
	}
	if err := svc.ReserveOnSubmit(intent); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}

	balance, err := svc.GetBalance("TECH3")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Reserved.Equal(dec("9000000")) {
		t.Errorf("Expected reserved 9000000, got %s", balance.Reserved)
	}
	if !balance.Spent.IsZero() {
		t.Errorf("Expected spent 0, got %s", balance.Spent)
	}
}

func TestReserveOnSubmit_SELL(t *testing.T) {
	svc := NewMemoryService()

	intent := ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "SELL",
		Notional:   dec("5000"),
	}
	if err := svc.ReserveOnSubmit(intent); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}

	// Sells earmark nothing; their cash shows up as proceeds at settlement.
	balance, err := svc.GetBalance("TECH3")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Reserved.IsZero() {
		t.Errorf("Expected reserved 0 for sell, got %s", balance.Reserved)
	}
}

func TestReserveOnSubmit_Idempotent(t *testing.T) {
	svc := NewMemoryService()

	intent := ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("100"),
	}
	if err := svc.ReserveOnSubmit(intent); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if err := svc.ReserveOnSubmit(intent); err != nil {
		t.Fatalf("repeated identical reserve should be idempotent: %v", err)
	}

	balance, _ := svc.GetBalance("TECH3")
	if !balance.Reserved.Equal(dec("100")) {
		t.Errorf("Expected reserved 100 after duplicate reserve, got %s", balance.Reserved)
	}

	// Same position with a different notional is a conflict.
	conflict := ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("200"),
	}
	err := svc.ReserveOnSubmit(conflict)
	if err == nil {
		t.Fatalf("expected conflict error but got nil")
	}
	if !errors.Is(err, ErrReservationConflict) {
		t.Errorf("expected reservation conflict, got %v", err)
	}
}

func TestSettleOnFill_BUY(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReserveOnSubmit(ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("1000"),
	}); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}

	if err := svc.SettleOnFill(SettleIntent{
		IndexID:       "TECH3",
		PositionID:    1,
		Action:        "BUY",
		ExecutedValue: dec("400"),
	}); err != nil {
		t.Fatalf("SettleOnFill failed: %v", err)
	}

	balance, _ := svc.GetBalance("TECH3")
	if !balance.Spent.Equal(dec("400")) {
		t.Errorf("Expected spent 400, got %s", balance.Spent)
	}
	if !balance.Reserved.Equal(dec("600")) {
		t.Errorf("Expected reserved 600 after partial settle, got %s", balance.Reserved)
	}
	if !balance.NetOutflow().Equal(dec("400")) {
		t.Errorf("Expected net outflow 400, got %s", balance.NetOutflow())
	}
}

func TestSettleOnFill_SELL(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReserveOnSubmit(ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 2,
		Action:     "SELL",
		Notional:   dec("0"),
	}); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}
	if err := svc.SettleOnFill(SettleIntent{
		IndexID:       "TECH3",
		PositionID:    2,
		Action:        "SELL",
		ExecutedValue: dec("960"),
	}); err != nil {
		t.Fatalf("SettleOnFill failed: %v", err)
	}

	balance, _ := svc.GetBalance("TECH3")
	if !balance.Proceeds.Equal(dec("960")) {
		t.Errorf("Expected proceeds 960, got %s", balance.Proceeds)
	}
	if !balance.NetOutflow().Equal(dec("-960")) {
		t.Errorf("Expected net outflow -960, got %s", balance.NetOutflow())
	}
}

func TestSettleOnFill_Idempotent(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReserveOnSubmit(ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("1000"),
	}); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}

	settle := SettleIntent{
		IndexID:       "TECH3",
		PositionID:    1,
		Action:        "BUY",
		ExecutedValue: dec("400"),
	}
	if err := svc.SettleOnFill(settle); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}
	if err := svc.SettleOnFill(settle); err != nil {
		t.Fatalf("repeated settle should be idempotent: %v", err)
	}

	balance, _ := svc.GetBalance("TECH3")
	if !balance.Spent.Equal(dec("400")) {
		t.Errorf("Expected spent 400 after duplicate settle, got %s", balance.Spent)
	}
	if !balance.Reserved.Equal(dec("600")) {
		t.Errorf("Expected reserved 600 after duplicate settle, got %s", balance.Reserved)
	}
}

func TestReleaseOnCancel(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReserveOnSubmit(ReserveIntent{
		IndexID:    "TECH3",
		PositionID: 1,
		Action:     "BUY",
		Notional:   dec("1000"),
	}); err != nil {
		t.Fatalf("ReserveOnSubmit failed: %v", err)
	}
	if err := svc.SettleOnFill(SettleIntent{
		IndexID:       "TECH3",
		PositionID:    1,
		Action:        "BUY",
		ExecutedValue: dec("400"),
	}); err != nil {
		t.Fatalf("SettleOnFill failed: %v", err)
	}

	// Cancel returns the unspent 600.
	if err := svc.ReleaseOnCancel(ReleaseIntent{IndexID: "TECH3", PositionID: 1}); err != nil {
		t.Fatalf("ReleaseOnCancel failed: %v", err)
	}

	balance, _ := svc.GetBalance("TECH3")
	if !balance.Reserved.IsZero() {
		t.Errorf("Expected reserved 0 after release, got %s", balance.Reserved)
	}
	if !balance.Released.Equal(dec("600")) {
		t.Errorf("Expected released 600, got %s", balance.Released)
	}

	// A second release finds nothing left.
	if err := svc.ReleaseOnCancel(ReleaseIntent{IndexID: "TECH3", PositionID: 1}); err != nil {
		t.Fatalf("repeated release should be a no-op: %v", err)
	}
	balance, _ = svc.GetBalance("TECH3")
	if !balance.Released.Equal(dec("600")) {
		t.Errorf("Expected released unchanged at 600, got %s", balance.Released)
	}
}

func TestReleaseOnCancel_UnknownPosition(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReleaseOnCancel(ReleaseIntent{IndexID: "TECH3", PositionID: 77}); err != nil {
		t.Errorf("release of unknown position should be a no-op, got %v", err)
	}
}

func TestGetBalance_UnknownIndex(t *testing.T) {
	svc := NewMemoryService()

	balance, err := svc.GetBalance("NOPE")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Reserved.IsZero() || !balance.Spent.IsZero() || !balance.Released.IsZero() || !balance.Proceeds.IsZero() {
		t.Errorf("Expected zero balance for unknown index, got %+v", balance)
	}
}

func TestIntentValidation(t *testing.T) {
	svc := NewMemoryService()

	if err := svc.ReserveOnSubmit(ReserveIntent{PositionID: 1, Action: "BUY", Notional: dec("1")}); err == nil {
		t.Errorf("reserve without index_id should fail")
	}
	if err := svc.ReserveOnSubmit(ReserveIntent{IndexID: "TECH3", Action: "BUY", Notional: dec("1")}); err == nil {
		t.Errorf("reserve without position_id should fail")
	}
	if err := svc.ReserveOnSubmit(ReserveIntent{IndexID: "TECH3", PositionID: 1, Action: "HOLD", Notional: dec("1")}); err == nil {
		t.Errorf("reserve with invalid action should fail")
	}
	if err := svc.ReserveOnSubmit(ReserveIntent{IndexID: "TECH3", PositionID: 1, Action: "BUY", Notional: dec("-1")}); err == nil {
		t.Errorf("reserve with negative notional should fail")
	}
	if err := svc.SettleOnFill(SettleIntent{IndexID: "TECH3", PositionID: 1, Action: "BUY", ExecutedValue: dec("-1")}); err == nil {
		t.Errorf("settle with negative value should fail")
	}
}
