package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

// txStore runs inside a BEGIN IMMEDIATE transaction, which already holds the database write
// lock, so Lock* methods are plain reads and arithmetic is read-then-write.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *txStore) millis() int64 {
	return t.now().UnixMilli()
}

func (t *txStore) LockDelivery(ctx context.Context, id int64) (*core.DeliveryTransaction, error) {
	return scanDelivery(t.tx.QueryRowContext(ctx, selectDelivery+" WHERE id = ?", id), id)
}

func (t *txStore) UpdateDelivery(ctx context.Context, d *core.DeliveryTransaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE delivery_transactions
		SET requested_quantity = ?,
		    fulfilled_quantity = ?,
		    unit_price_at_fulfillment = ?,
		    remarks = ?,
		    revision = revision + 1,
		    updated_at = ?
		WHERE id = ? AND revision = ?
	`, d.RequestedQuantity, d.FulfilledQuantity, d.UnitPriceAtFulfillment, d.Remarks, t.millis(), d.ID, d.Revision)
	if err != nil {
		return classify(fmt.Errorf("failed to update delivery transaction: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %d is no longer at revision %d", core.ErrConcurrentConflict, d.ID, d.Revision)
	}
	d.Revision++
	return nil
}

func (t *txStore) LockAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, selectAccount+" WHERE customer_id = ?", customerID), customerID)
}

func (t *txStore) LockInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error) {
	row := t.tx.QueryRowContext(ctx, selectInventory+" WHERE station_id = ? AND product_id = ?", stationID, productID)
	return scanInventory(row, stationID, productID)
}

func (t *txStore) AddBalance(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	acct, err := t.LockAccount(ctx, customerID)
	if err != nil {
		return err
	}
	return t.setAccountField(ctx, customerID, "balance", acct.Balance.Add(delta))
}

func (t *txStore) AddCreditLimit(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	acct, err := t.LockAccount(ctx, customerID)
	if err != nil {
		return err
	}
	return t.setAccountField(ctx, customerID, "credit_limit", acct.CreditLimit.Add(delta))
}

func (t *txStore) AddDailyUsed(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	acct, err := t.LockAccount(ctx, customerID)
	if err != nil {
		return err
	}
	used := acct.DailyUsed.Decimal.Add(delta)
	if used.IsNegative() {
		used = decimal.Zero
	}
	return t.setAccountField(ctx, customerID, "daily_used", used)
}

// setAccountField writes one ledger column; column is always a constant from this file.
func (t *txStore) setAccountField(ctx context.Context, customerID int64, column string, value decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE customer_accounts SET "+column+" = ?, updated_at = ? WHERE customer_id = ?",
		value, t.millis(), customerID)
	if err != nil {
		return classify(fmt.Errorf("failed to update customer account: %w", err))
	}
	return nil
}

func (t *txStore) AddStock(ctx context.Context, stationID, productID int64, delta decimal.Decimal) error {
	inv, err := t.LockInventory(ctx, stationID, productID)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE station_inventory
		SET stock_quantity = ?, updated_at = ?
		WHERE station_id = ? AND product_id = ?
	`, inv.StockQuantity.Add(delta), t.millis(), stationID, productID)
	if err != nil {
		return classify(fmt.Errorf("failed to update station inventory: %w", err))
	}
	return nil
}

func (t *txStore) InsertAdjustment(ctx context.Context, adj *core.LedgerAdjustment) error {
	createdAt := t.now()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO delivery_adjustments
		    (transaction_id, revision, from_quantity, to_quantity, quantity_delta,
		     monetary_delta, unit_price, direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, adj.TransactionID, adj.Revision, adj.FromQuantity, adj.ToQuantity, adj.QuantityDelta,
		adj.MonetaryDelta, adj.UnitPrice, string(adj.Direction), createdAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: adjustment for transaction %d revision %d already journaled",
				core.ErrConcurrentConflict, adj.TransactionID, adj.Revision)
		}
		return classify(fmt.Errorf("failed to insert adjustment: %w", err))
	}
	adj.CreatedAt = time.UnixMilli(createdAt.UnixMilli())
	return nil
}

func (t *txStore) UpsertAccount(ctx context.Context, plan core.AccountPlan) (*core.CustomerAccount, core.ProvisionOutcome, error) {
	now := t.millis()
	existing, err := t.LockAccount(ctx, plan.CustomerID)
	switch {
	case errors.Is(err, core.ErrAccountNotFound):
		var dailyUsed decimal.NullDecimal
		if plan.PlanType.IsDailyCapped() {
			dailyUsed = decimal.NewNullDecimal(decimal.Zero)
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO customer_accounts
			    (customer_id, balance, credit_limit, daily_cap, daily_used, plan_type, created_at, updated_at)
			VALUES (?, '0', '0', ?, ?, ?, ?, ?)
		`, plan.CustomerID, plan.DailyCap, dailyUsed, string(plan.PlanType), now, now)
		if err != nil {
			return nil, "", classify(fmt.Errorf("failed to insert customer account: %w", err))
		}
		acct, err := t.LockAccount(ctx, plan.CustomerID)
		if err != nil {
			return nil, "", err
		}
		return acct, core.ProvisionCreated, nil

	case err != nil:
		return nil, "", err
	}

	dailyUsed := existing.DailyUsed
	if plan.PlanType.IsDailyCapped() && !dailyUsed.Valid {
		dailyUsed = decimal.NewNullDecimal(decimal.Zero)
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE customer_accounts
		SET plan_type = ?, daily_cap = ?, daily_used = ?, updated_at = ?
		WHERE customer_id = ?
	`, string(plan.PlanType), plan.DailyCap, dailyUsed, now, plan.CustomerID)
	if err != nil {
		return nil, "", classify(fmt.Errorf("failed to update customer account: %w", err))
	}
	acct, err := t.LockAccount(ctx, plan.CustomerID)
	if err != nil {
		return nil, "", err
	}
	return acct, core.ProvisionUpdated, nil
}
