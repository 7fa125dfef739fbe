package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of a fulfilled-quantity change.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionNone     Direction = "none"
)

// LedgerAdjustment is the unit of work of one reconciliation: a signed quantity change and its
// monetary magnitude at the resolved price. Revision is the delivery revision it was computed
// against; (TransactionID, Revision) is unique among committed adjustments.
type LedgerAdjustment struct {
	TransactionID int64           `json:"transaction_id"`
	Revision      int64           `json:"revision"`
	FromQuantity  decimal.Decimal `json:"from_quantity"`
	ToQuantity    decimal.Decimal `json:"to_quantity"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"` // signed, to - from
	MonetaryDelta decimal.Decimal `json:"monetary_delta"` // |quantity_delta| * unit_price
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Direction     Direction       `json:"direction"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsZero reports whether applying a writes nothing.
func (a LedgerAdjustment) IsZero() bool {
	return a.QuantityDelta.IsZero() && a.MonetaryDelta.IsZero()
}

// LedgerEffects are the signed amounts added to each of the four ledgers.
type LedgerEffects struct {
	Balance     decimal.Decimal
	CreditLimit decimal.Decimal
	DailyUsed   decimal.Decimal
	Stock       decimal.Decimal
}

// Effects maps the adjustment onto the ledgers. Delivering more raises balance and daily usage
// and lowers credit and stock; delivering less does the opposite.
func (a LedgerAdjustment) Effects() LedgerEffects {
	m := a.MonetaryDelta
	if a.Direction == DirectionDecrease {
		m = m.Neg()
	}
	return LedgerEffects{
		Balance:     m,
		CreditLimit: m.Neg(),
		DailyUsed:   m,
		Stock:       a.QuantityDelta.Neg(),
	}
}

// ComputeDelta builds the adjustment that moves a delivery from oldQty to newQty at price.
func ComputeDelta(transactionID int64, oldQty, newQty, price decimal.Decimal) LedgerAdjustment {
	qd := newQty.Sub(oldQty)
	adj := LedgerAdjustment{
		TransactionID: transactionID,
		FromQuantity:  oldQty,
		ToQuantity:    newQty,
		QuantityDelta: qd,
		UnitPrice:     price,
		Direction:     DirectionNone,
		MonetaryDelta: decimal.Zero,
	}
	switch qd.Sign() {
	case 1:
		adj.Direction = DirectionIncrease
	case -1:
		adj.Direction = DirectionDecrease
	default:
		return adj
	}
	adj.MonetaryDelta = qd.Abs().Mul(price)
	return adj
}
