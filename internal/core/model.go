package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanType is the billing plan a customer account runs on.
type PlanType string

const (
	PlanPrepaid     PlanType = "prepaid"
	PlanPostpaid    PlanType = "postpaid"
	PlanDailyCapped PlanType = "daily_capped"
)

// Valid reports whether p is one of the known plan types.
func (p PlanType) Valid() bool {
	switch p {
	case PlanPrepaid, PlanPostpaid, PlanDailyCapped:
		return true
	}
	return false
}

func (p PlanType) IsDailyCapped() bool { return p == PlanDailyCapped }

// CustomerAccount holds the three customer-side ledgers touched by a delivery edit.
// For daily-capped plans DailyCap and DailyUsed are always valid and DailyUsed is never negative;
// DailyUsed is reset by an external rollover job.
type CustomerAccount struct {
	CustomerID  int64               `json:"customer_id"`
	Balance     decimal.Decimal     `json:"balance"`      // amount owed by the customer
	CreditLimit decimal.Decimal     `json:"credit_limit"` // remaining spendable credit
	DailyCap    decimal.NullDecimal `json:"daily_cap"`
	DailyUsed   decimal.NullDecimal `json:"daily_used"`
	PlanType    PlanType            `json:"plan_type"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// DailyCapExceeded reports whether a daily-capped account has spent past its cap today.
func (a *CustomerAccount) DailyCapExceeded() bool {
	if !a.PlanType.IsDailyCapped() || !a.DailyCap.Valid || !a.DailyUsed.Valid {
		return false
	}
	return a.DailyUsed.Decimal.GreaterThan(a.DailyCap.Decimal)
}

// StationInventory is the on-hand stock of one product at one station.
type StationInventory struct {
	StationID     int64           `json:"station_id"`
	ProductID     int64           `json:"product_id"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DeliveryTransaction is a fulfilled delivery of a product from a station to a customer.
// Revision is bumped on every persisted edit and doubles as the optimistic version.
type DeliveryTransaction struct {
	ID                     int64               `json:"id"`
	StationID              int64               `json:"station_id"`
	ProductID              int64               `json:"product_id"`
	CustomerID             int64               `json:"customer_id"`
	RequestedQuantity      decimal.Decimal     `json:"requested_quantity"`
	FulfilledQuantity      decimal.Decimal     `json:"fulfilled_quantity"`
	UnitPriceAtFulfillment decimal.NullDecimal `json:"unit_price_at_fulfillment"` // unset when the current quantity was saved without a price
	Remarks                string              `json:"remarks"`
	Revision               int64               `json:"revision"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// PriceKey returns the (station, product, customer) triple the delivery is priced by.
func (d *DeliveryTransaction) PriceKey() PriceKey {
	return PriceKey{StationID: d.StationID, ProductID: d.ProductID, CustomerID: d.CustomerID}
}

// LedgerKeys returns the rows a reconciliation of this delivery writes to.
func (d *DeliveryTransaction) LedgerKeys() LedgerKeys {
	return LedgerKeys{CustomerID: d.CustomerID, StationID: d.StationID, ProductID: d.ProductID}
}

// LedgerKeys identifies the account and inventory rows of one adjustment.
type LedgerKeys struct {
	CustomerID int64
	StationID  int64
	ProductID  int64
}
