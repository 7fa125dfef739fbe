// Package sqlite implements the engine's store over an embedded SQLite file using the pure-Go
// modernc driver. Every commit scope is a BEGIN IMMEDIATE transaction on the single writer
// connection, so scopes are serialised and row locks are implicit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const dateLayout = "2006-01-02"

// Store implements core.Store.
type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	now         func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// busyTimeout bounds how long a scope waits for the write lock before failing with a conflict.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, busyTimeout: busyTimeout, now: time.Now}, nil
}

// DB exposes the underlying handle for seeding and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec runs one statement outside any commit scope, with ? placeholders. Used by seeding tools.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

// InTx runs fn in an immediate transaction. The single connection is shared, so a scope that
// cannot get it within the busy timeout fails with ErrConcurrentConflict instead of queueing.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		if c := classify(err); errors.Is(c, core.ErrConcurrentConflict) {
			return c
		}
		return fmt.Errorf("%w: failed to begin transaction: %w", core.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx, now: s.now}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		if c := classify(err); errors.Is(c, core.ErrConcurrentConflict) {
			return c
		}
		return fmt.Errorf("%w: failed to commit transaction: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context) (*sql.Conn, error) {
	if s.busyTimeout <= 0 {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to acquire connection: %w", core.ErrStoreUnavailable, err)
		}
		return conn, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.busyTimeout)
	defer cancel()
	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: connection busy for %s", core.ErrConcurrentConflict, s.busyTimeout)
		}
		return nil, fmt.Errorf("%w: failed to acquire connection: %w", core.ErrStoreUnavailable, err)
	}
	return conn, nil
}

func (s *Store) GetDelivery(ctx context.Context, id int64) (*core.DeliveryTransaction, error) {
	return scanDelivery(s.db.QueryRowContext(ctx, selectDelivery+" WHERE id = ?", id), id)
}

func (s *Store) GetAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+" WHERE customer_id = ?", customerID), customerID)
}

func (s *Store) GetInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error) {
	row := s.db.QueryRowContext(ctx, selectInventory+" WHERE station_id = ? AND product_id = ?", stationID, productID)
	return scanInventory(row, stationID, productID)
}

func (s *Store) LookupPrice(ctx context.Context, key core.PriceKey, asOf time.Time) (decimal.Decimal, bool, error) {
	day := asOf.Format(dateLayout)
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT unit_price
		FROM station_prices
		WHERE station_id = ?
		  AND product_id = ?
		  AND customer_id = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`, key.StationID, key.ProductID, key.CustomerID, day, day).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, classify(fmt.Errorf("failed to query price: %w", err))
	}
	return price, true, nil
}

func (s *Store) ListAdjustments(ctx context.Context, transactionID int64) ([]core.LedgerAdjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, revision, from_quantity, to_quantity, quantity_delta,
		       monetary_delta, unit_price, direction, created_at
		FROM delivery_adjustments
		WHERE transaction_id = ?
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
		var createdAt int64
		if err := rows.Scan(&a.TransactionID, &a.Revision, &a.FromQuantity, &a.ToQuantity, &a.QuantityDelta,
			&a.MonetaryDelta, &a.UnitPrice, &direction, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Direction = core.Direction(direction)
		a.CreatedAt = time.UnixMilli(createdAt)
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating adjustments: %w", err)
	}
	return adjustments, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps SQLite busy/locked results to ErrConcurrentConflict.
func classify(err error) error {
	if err == nil || errors.Is(err, core.ErrConcurrentConflict) || errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", core.ErrConcurrentConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended codes off
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
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

func scanDelivery(row *sql.Row, id int64) (*core.DeliveryTransaction, error) {
	var d core.DeliveryTransaction
	var createdAt, updatedAt int64
	err := row.Scan(
		&d.ID, &d.StationID, &d.ProductID, &d.CustomerID, &d.RequestedQuantity, &d.FulfilledQuantity,
		&d.UnitPriceAtFulfillment, &d.Remarks, &d.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", core.ErrTransactionNotFound, id)
		}
		return nil, classify(fmt.Errorf("failed to fetch delivery transaction: %w", err))
	}
	d.CreatedAt = time.UnixMilli(createdAt)
	d.UpdatedAt = time.UnixMilli(updatedAt)
	return &d, nil
}

func scanAccount(row *sql.Row, customerID int64) (*core.CustomerAccount, error) {
	var a core.CustomerAccount
	var plan string
	var createdAt, updatedAt int64
	err := row.Scan(
		&a.CustomerID, &a.Balance, &a.CreditLimit, &a.DailyCap, &a.DailyUsed, &plan, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %d", core.ErrAccountNotFound, customerID)
		}
		return nil, classify(fmt.Errorf("failed to fetch customer account: %w", err))
	}
	a.PlanType = core.PlanType(plan)
	a.CreatedAt = time.UnixMilli(createdAt)
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return &a, nil
}

func scanInventory(row *sql.Row, stationID, productID int64) (*core.StationInventory, error) {
	var inv core.StationInventory
	var updatedAt int64
	err := row.Scan(&inv.StationID, &inv.ProductID, &inv.StockQuantity, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: station %d product %d", core.ErrInventoryNotFound, stationID, productID)
		}
		return nil, classify(fmt.Errorf("failed to fetch station inventory: %w", err))
	}
	inv.UpdatedAt = time.UnixMilli(updatedAt)
	return &inv, nil
}
