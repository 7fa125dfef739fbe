package core_test

import (
	"testing"

	"delivery-reconciler/internal/core"
)

func TestComputeDelta(t *testing.T) {
	tests := []struct {
		name          string
		from, to      string
		price         string
		wantQtyDelta  string
		wantMonetary  string
		wantDirection core.Direction
	}{
		{"increase", "100", "130", "10", "30", "300", core.DirectionIncrease},
		{"decrease", "130", "100", "10", "-30", "300", core.DirectionDecrease},
		{"unchanged", "100", "100", "10", "0", "0", core.DirectionNone},
		{"fractional quantities", "10.5", "12.25", "3.2", "1.75", "5.6", core.DirectionIncrease},
		{"zero price", "5", "8", "0", "3", "0", core.DirectionIncrease},
		{"from zero", "0", "2.5", "4", "2.5", "10", core.DirectionIncrease},
		{"to zero", "2.5", "0", "4", "-2.5", "10", core.DirectionDecrease},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj := core.ComputeDelta(9, dec(tt.from), dec(tt.to), dec(tt.price))
			if adj.TransactionID != 9 {
				t.Errorf("transaction id: got %d, want 9", adj.TransactionID)
			}
			assertDecimal(t, "quantity delta", adj.QuantityDelta, dec(tt.wantQtyDelta))
			assertDecimal(t, "monetary delta", adj.MonetaryDelta, dec(tt.wantMonetary))
			if adj.Direction != tt.wantDirection {
				t.Errorf("direction: got %s, want %s", adj.Direction, tt.wantDirection)
			}
			if adj.MonetaryDelta.IsNegative() {
				t.Errorf("monetary delta must never be negative, got %s", adj.MonetaryDelta)
			}
			assertDecimal(t, "from", adj.FromQuantity, dec(tt.from))
			assertDecimal(t, "to", adj.ToQuantity, dec(tt.to))
		})
	}
}

func TestLedgerAdjustment_Effects(t *testing.T) {
	up := core.ComputeDelta(1, dec("100"), dec("130"), dec("10")).Effects()
	assertDecimal(t, "balance", up.Balance, dec("300"))
	assertDecimal(t, "credit limit", up.CreditLimit, dec("-300"))
	assertDecimal(t, "daily used", up.DailyUsed, dec("300"))
	assertDecimal(t, "stock", up.Stock, dec("-30"))

	down := core.ComputeDelta(1, dec("130"), dec("100"), dec("10")).Effects()
	assertDecimal(t, "balance", down.Balance, dec("-300"))
	assertDecimal(t, "credit limit", down.CreditLimit, dec("300"))
	assertDecimal(t, "daily used", down.DailyUsed, dec("-300"))
	assertDecimal(t, "stock", down.Stock, dec("30"))

	// An increase followed by the matching decrease nets to zero on every ledger.
	if !up.Balance.Add(down.Balance).IsZero() || !up.Stock.Add(down.Stock).IsZero() {
		t.Error("round trip must net to zero")
	}
}

func TestLedgerAdjustment_IsZero(t *testing.T) {
	if !core.ComputeDelta(1, dec("5"), dec("5"), dec("10")).IsZero() {
		t.Error("unchanged quantity must be a zero adjustment")
	}
	// A quantity change at price zero still moves stock.
	if core.ComputeDelta(1, dec("5"), dec("6"), dec("0")).IsZero() {
		t.Error("quantity change at zero price must not be a zero adjustment")
	}
}
