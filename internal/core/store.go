package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistent store the engine coordinates through. All ledger mutation happens
// inside InTx: fn's writes commit together or, when fn or the commit fails, not at all.
// Implementations classify driver errors into ErrConcurrentConflict and ErrStoreUnavailable.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetDelivery(ctx context.Context, id int64) (*DeliveryTransaction, error)
	GetAccount(ctx context.Context, customerID int64) (*CustomerAccount, error)
	GetInventory(ctx context.Context, stationID, productID int64) (*StationInventory, error)
	// LookupPrice returns the unit price effective on asOf; ok is false when none is configured.
	LookupPrice(ctx context.Context, key PriceKey, asOf time.Time) (price decimal.Decimal, ok bool, err error)
	ListAdjustments(ctx context.Context, transactionID int64) ([]LedgerAdjustment, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is one atomic commit scope. Lock* methods take row locks that fail fast with
// ErrConcurrentConflict instead of waiting on another scope.
type Tx interface {
	LockDelivery(ctx context.Context, id int64) (*DeliveryTransaction, error)
	// UpdateDelivery persists d's mutable fields if the stored revision still equals d.Revision,
	// then advances d.Revision. A stale revision yields ErrConcurrentConflict.
	UpdateDelivery(ctx context.Context, d *DeliveryTransaction) error

	LockAccount(ctx context.Context, customerID int64) (*CustomerAccount, error)
	LockInventory(ctx context.Context, stationID, productID int64) (*StationInventory, error)

	AddBalance(ctx context.Context, customerID int64, delta decimal.Decimal) error
	AddCreditLimit(ctx context.Context, customerID int64, delta decimal.Decimal) error
	// AddDailyUsed never lets daily usage drop below zero.
	AddDailyUsed(ctx context.Context, customerID int64, delta decimal.Decimal) error
	AddStock(ctx context.Context, stationID, productID int64, delta decimal.Decimal) error

	// InsertAdjustment journals a committed adjustment. A second adjustment for the same
	// (transaction, revision) yields ErrConcurrentConflict.
	InsertAdjustment(ctx context.Context, adj *LedgerAdjustment) error

	UpsertAccount(ctx context.Context, plan AccountPlan) (*CustomerAccount, ProvisionOutcome, error)
}
