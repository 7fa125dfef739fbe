// Package postgres implements the engine's store over PostgreSQL with pgx.
// Row locks are taken with FOR UPDATE NOWAIT so a conflicting scope fails fast.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-reconciler/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SQLSTATE codes that mean "another scope got there first".
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exec runs one statement outside any commit scope, with $n placeholders. Used by seeding tools.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", core.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if c := classify(err); errors.Is(c, core.ErrConcurrentConflict) {
			return c
		}
		return fmt.Errorf("%w: failed to commit transaction: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, id int64) (*core.DeliveryTransaction, error) {
	return scanDelivery(ctx, s.pool, selectDelivery+" WHERE id = $1", id)
}

func (s *Store) GetAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error) {
	return scanAccount(ctx, s.pool, selectAccount+" WHERE customer_id = $1", customerID)
}

func (s *Store) GetInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error) {
	return scanInventory(ctx, s.pool, selectInventory+" WHERE station_id = $1 AND product_id = $2", stationID, productID)
}

func (s *Store) LookupPrice(ctx context.Context, key core.PriceKey, asOf time.Time) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT unit_price
		FROM station_prices
		WHERE station_id = $1
		  AND product_id = $2
		  AND customer_id = $3
		  AND effective_from <= $4::date
		  AND (effective_to IS NULL OR effective_to >= $4::date)
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`, key.StationID, key.ProductID, key.CustomerID, asOf).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, classify(fmt.Errorf("failed to query price: %w", err))
	}
	return price, true, nil
}

func (s *Store) ListAdjustments(ctx context.Context, transactionID int64) ([]core.LedgerAdjustment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT transaction_id, revision, from_quantity, to_quantity, quantity_delta,
		       monetary_delta, unit_price, direction, created_at
		FROM delivery_adjustments
		WHERE transaction_id = $1
		ORDER BY revision
	`, transactionID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query adjustments: %w", err))
	}
	defer rows.Close()

	var adjustments []core.LedgerAdjustment
	for rows.Next() {
		var a core.LedgerAdjustment
		var direction string
		if err := rows.Scan(&a.TransactionID, &a.Revision, &a.FromQuantity, &a.ToQuantity, &a.QuantityDelta,
			&a.MonetaryDelta, &a.UnitPrice, &direction, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Direction = core.Direction(direction)
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating adjustments: %w", err)
	}
	return adjustments, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify maps driver errors onto the engine's error taxonomy, leaving others untouched.
func classify(err error) error {
	if err == nil || errors.Is(err, core.ErrConcurrentConflict) || errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", core.ErrConcurrentConflict, err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return err
}

const selectDelivery = `
	SELECT id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity,
	       unit_price_at_fulfillment, remarks, revision, created_at, updated_at
	FROM delivery_transactions`

const selectAccount = `
	SELECT customer_id, balance, credit_limit, daily_cap, daily_used, plan_type, created_at, updated_at
	FROM customer_accounts`

const selectInventory = `
	SELECT station_id, product_id, stock_quantity, updated_at
	FROM station_inventory`

func scanDelivery(ctx context.Context, q pgxQuerier, sql string, args ...any) (*core.DeliveryTransaction, error) {
	var d core.DeliveryTransaction
	err := q.QueryRow(ctx, sql, args...).Scan(
		&d.ID, &d.StationID, &d.ProductID, &d.CustomerID, &d.RequestedQuantity, &d.FulfilledQuantity,
		&d.UnitPriceAtFulfillment, &d.Remarks, &d.Revision, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %v", core.ErrTransactionNotFound, args[0])
		}
		return nil, classify(fmt.Errorf("failed to fetch delivery transaction: %w", err))
	}
	return &d, nil
}

func scanAccount(ctx context.Context, q pgxQuerier, sql string, args ...any) (*core.CustomerAccount, error) {
	var a core.CustomerAccount
	var plan string
	err := q.QueryRow(ctx, sql, args...).Scan(
		&a.CustomerID, &a.Balance, &a.CreditLimit, &a.DailyCap, &a.DailyUsed, &plan, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %v", core.ErrAccountNotFound, args[0])
		}
		return nil, classify(fmt.Errorf("failed to fetch customer account: %w", err))
	}
	a.PlanType = core.PlanType(plan)
	return &a, nil
}

func scanInventory(ctx context.Context, q pgxQuerier, sql string, args ...any) (*core.StationInventory, error) {
	var inv core.StationInventory
	err := q.QueryRow(ctx, sql, args...).Scan(&inv.StationID, &inv.ProductID, &inv.StockQuantity, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: station %v product %v", core.ErrInventoryNotFound, args[0], args[1])
		}
		return nil, classify(fmt.Errorf("failed to fetch station inventory: %w", err))
	}
	return &inv, nil
}
