package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StockPolicy decides whether a reconciliation may drive station stock below zero.
type StockPolicy string

const (
	// StockAllowBackorder lets stock go negative; the shortfall is an implicit back-order.
	StockAllowBackorder StockPolicy = "allow_backorder"
	// StockRejectNegative fails any adjustment that would leave stock negative.
	StockRejectNegative StockPolicy = "reject_negative"
)

func (p StockPolicy) Valid() bool {
	return p == StockAllowBackorder || p == StockRejectNegative
}

// LedgerResult is the state of both rows after an adjustment was applied in its scope.
type LedgerResult struct {
	Account          *CustomerAccount
	Inventory        *StationInventory
	Writes           int  // ledger fields written
	DailyCapExceeded bool // daily usage now exceeds the cap; reported, not enforced
}

// LedgerStore applies adjustments to the customer and station ledgers.
type LedgerStore interface {
	// ApplyAdjustment applies adj in its own atomic commit scope.
	ApplyAdjustment(ctx context.Context, keys LedgerKeys, adj LedgerAdjustment) (*LedgerResult, error)

	// ApplyAdjustmentTx applies adj within the caller's scope so the caller's own writes
	// commit atomically with the ledger writes.
	ApplyAdjustmentTx(ctx context.Context, tx Tx, keys LedgerKeys, adj LedgerAdjustment) (*LedgerResult, error)
}

type ledgerStore struct {
	store  Store
	policy StockPolicy
}

func NewLedgerStore(store Store, policy StockPolicy) LedgerStore {
	if !policy.Valid() {
		policy = StockAllowBackorder
	}
	return &ledgerStore{store: store, policy: policy}
}

func (l *ledgerStore) ApplyAdjustment(ctx context.Context, keys LedgerKeys, adj LedgerAdjustment) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.store.InTx(ctx, func(tx Tx) error {
		var err error
		res, err = l.ApplyAdjustmentTx(ctx, tx, keys, adj)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *ledgerStore) ApplyAdjustmentTx(ctx context.Context, tx Tx, keys LedgerKeys, adj LedgerAdjustment) (*LedgerResult, error) {
	// Account before inventory, always, so two scopes never wait on each other in opposite order.
	acct, err := tx.LockAccount(ctx, keys.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account for customer %d: %w", keys.CustomerID, err)
	}
	inv, err := tx.LockInventory(ctx, keys.StationID, keys.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock inventory for station %d product %d: %w", keys.StationID, keys.ProductID, err)
	}

	res := &LedgerResult{Account: acct, Inventory: inv}
	if adj.IsZero() {
		return res, nil
	}

	eff := adj.Effects()
	newStock := inv.StockQuantity.Add(eff.Stock)
	if l.policy == StockRejectNegative && eff.Stock.IsNegative() && newStock.IsNegative() {
		return nil, fmt.Errorf("%w: station %d product %d has %s on hand, delivery needs %s more",
			ErrInsufficientStock, keys.StationID, keys.ProductID,
			inv.StockQuantity.String(), eff.Stock.Neg().String())
	}

	if !eff.Balance.IsZero() {
		if err := tx.AddBalance(ctx, keys.CustomerID, eff.Balance); err != nil {
			return nil, fmt.Errorf("failed to adjust balance for customer %d: %w", keys.CustomerID, err)
		}
		acct.Balance = acct.Balance.Add(eff.Balance)
		res.Writes++
	}
	if !eff.CreditLimit.IsZero() {
		if err := tx.AddCreditLimit(ctx, keys.CustomerID, eff.CreditLimit); err != nil {
			return nil, fmt.Errorf("failed to adjust credit limit for customer %d: %w", keys.CustomerID, err)
		}
		acct.CreditLimit = acct.CreditLimit.Add(eff.CreditLimit)
		res.Writes++
	}
	if acct.PlanType.IsDailyCapped() && !eff.DailyUsed.IsZero() {
		if err := tx.AddDailyUsed(ctx, keys.CustomerID, eff.DailyUsed); err != nil {
			return nil, fmt.Errorf("failed to adjust daily usage for customer %d: %w", keys.CustomerID, err)
		}
		used := acct.DailyUsed.Decimal.Add(eff.DailyUsed)
		if used.IsNegative() {
			used = decimal.Zero
		}
		acct.DailyUsed.Decimal = used
		acct.DailyUsed.Valid = true
		res.Writes++
	}
	if !eff.Stock.IsZero() {
		if err := tx.AddStock(ctx, keys.StationID, keys.ProductID, eff.Stock); err != nil {
			return nil, fmt.Errorf("failed to adjust stock for station %d product %d: %w", keys.StationID, keys.ProductID, err)
		}
		inv.StockQuantity = newStock
		res.Writes++
	}

	res.DailyCapExceeded = acct.DailyCapExceeded()
	return res, nil
}
