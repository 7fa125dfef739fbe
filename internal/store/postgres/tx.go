package postgres

import (
	"context"
	"errors"
	"fmt"

	"delivery-reconciler/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) LockDelivery(ctx context.Context, id int64) (*core.DeliveryTransaction, error) {
	return scanDelivery(ctx, t.tx, selectDelivery+" WHERE id = $1 FOR UPDATE NOWAIT", id)
}

func (t *txStore) UpdateDelivery(ctx context.Context, d *core.DeliveryTransaction) error {
	var price any
	if d.UnitPriceAtFulfillment.Valid {
		price = d.UnitPriceAtFulfillment.Decimal
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE delivery_transactions
		SET requested_quantity = $1,
		    fulfilled_quantity = $2,
		    unit_price_at_fulfillment = $3,
		    remarks = $4,
		    revision = revision + 1,
		    updated_at = NOW()
		WHERE id = $5 AND revision = $6
	`, d.RequestedQuantity, d.FulfilledQuantity, price, d.Remarks, d.ID, d.Revision)
	if err != nil {
		return classify(fmt.Errorf("failed to update delivery transaction: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %d is no longer at revision %d", core.ErrConcurrentConflict, d.ID, d.Revision)
	}
	d.Revision++
	return nil
}

func (t *txStore) LockAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error) {
	return scanAccount(ctx, t.tx, selectAccount+" WHERE customer_id = $1 FOR UPDATE NOWAIT", customerID)
}

func (t *txStore) LockInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error) {
	return scanInventory(ctx, t.tx, selectInventory+" WHERE station_id = $1 AND product_id = $2 FOR UPDATE NOWAIT", stationID, productID)
}

func (t *txStore) AddBalance(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	return t.execAccount(ctx, customerID, "balance = balance + $1", delta)
}

func (t *txStore) AddCreditLimit(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	return t.execAccount(ctx, customerID, "credit_limit = credit_limit + $1", delta)
}

func (t *txStore) AddDailyUsed(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	return t.execAccount(ctx, customerID, "daily_used = GREATEST(COALESCE(daily_used, 0) + $1, 0)", delta)
}

func (t *txStore) execAccount(ctx context.Context, customerID int64, set string, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE customer_accounts SET "+set+", updated_at = NOW() WHERE customer_id = $2",
		delta, customerID)
	if err != nil {
		return classify(fmt.Errorf("failed to update customer account: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d", core.ErrAccountNotFound, customerID)
	}
	return nil
}

func (t *txStore) AddStock(ctx context.Context, stationID, productID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE station_inventory
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE station_id = $2 AND product_id = $3
	`, delta, stationID, productID)
	if err != nil {
		return classify(fmt.Errorf("failed to update station inventory: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: station %d product %d", core.ErrInventoryNotFound, stationID, productID)
	}
	return nil
}

func (t *txStore) InsertAdjustment(ctx context.Context, adj *core.LedgerAdjustment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_adjustments
		    (transaction_id, revision, from_quantity, to_quantity, quantity_delta,
		     monetary_delta, unit_price, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, adj.TransactionID, adj.Revision, adj.FromQuantity, adj.ToQuantity, adj.QuantityDelta,
		adj.MonetaryDelta, adj.UnitPrice, string(adj.Direction)).Scan(&adj.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return fmt.Errorf("%w: adjustment for transaction %d revision %d already journaled",
				core.ErrConcurrentConflict, adj.TransactionID, adj.Revision)
		}
		return classify(fmt.Errorf("failed to insert adjustment: %w", err))
	}
	return nil
}

// UpsertAccount relies on ON CONFLICT so concurrent first calls for one customer converge on a
// single row; xmax = 0 only holds for a freshly inserted tuple.
func (t *txStore) UpsertAccount(ctx context.Context, plan core.AccountPlan) (*core.CustomerAccount, core.ProvisionOutcome, error) {
	var dailyCap any
	if plan.DailyCap.Valid {
		dailyCap = plan.DailyCap.Decimal
	}
	var dailyUsed any
	if plan.PlanType.IsDailyCapped() {
		dailyUsed = decimal.Zero
	}

	var a core.CustomerAccount
	var planType string
	var inserted bool
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customer_accounts (customer_id, balance, credit_limit, daily_cap, daily_used, plan_type)
		VALUES ($1, 0, 0, $2, $3, $4)
		ON CONFLICT (customer_id) DO UPDATE
		SET daily_cap = EXCLUDED.daily_cap,
		    plan_type = EXCLUDED.plan_type,
		    daily_used = CASE WHEN $5 THEN COALESCE(customer_accounts.daily_used, 0)
		                      ELSE customer_accounts.daily_used END,
		    updated_at = NOW()
		RETURNING customer_id, balance, credit_limit, daily_cap, daily_used, plan_type,
		          created_at, updated_at, (xmax = 0) AS inserted
	`, plan.CustomerID, dailyCap, dailyUsed, string(plan.PlanType), plan.PlanType.IsDailyCapped()).Scan(
		&a.CustomerID, &a.Balance, &a.CreditLimit, &a.DailyCap, &a.DailyUsed, &planType,
		&a.CreatedAt, &a.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, "", classify(fmt.Errorf("failed to upsert customer account: %w", err))
	}
	a.PlanType = core.PlanType(planType)

	outcome := core.ProvisionUpdated
	if inserted {
		outcome = core.ProvisionCreated
	}
	return &a, outcome, nil
}
