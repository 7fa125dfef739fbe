// seed-dev loads a small demo data set: one station stocking one product, three customers on
// each plan type with agreed prices, and one delivery per customer ready to reconcile.
// Safe to re-run; existing rows are reset to the demo values.
//
// Usage: go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"delivery-reconciler/internal/config"
	"delivery-reconciler/internal/core"
	"delivery-reconciler/internal/db"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	demoStation = 1
	demoProduct = 1
)

type demoCustomer struct {
	id       int64
	plan     core.PlanType
	dailyCap decimal.NullDecimal
	price    decimal.Decimal
	delivery int64
	quantity decimal.Decimal
}

var demoCustomers = []demoCustomer{
	{id: 101, plan: core.PlanPrepaid, price: decimal.RequireFromString("10.00"), delivery: 9001, quantity: decimal.NewFromInt(100)},
	{id: 102, plan: core.PlanPostpaid, price: decimal.RequireFromString("9.50"), delivery: 9002, quantity: decimal.NewFromInt(40)},
	{
		id: 103, plan: core.PlanDailyCapped,
		dailyCap: decimal.NewNullDecimal(decimal.NewFromInt(500)),
		price:    decimal.RequireFromString("11.25"), delivery: 9003, quantity: decimal.NewFromInt(20),
	},
}

// execer is implemented by both store backends.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.Log)

	ctx := context.Background()
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect")
	}
	defer store.Close()

	ex, ok := store.(execer)
	if !ok {
		logger.Fatalf("store %T cannot run seed statements", store)
	}
	exec := func(query string, args ...any) error {
		if cfg.Database.Driver == "postgres" {
			query = rebind(query)
		}
		return ex.Exec(ctx, query, args...)
	}

	if err := seed(ctx, store, exec, logger); err != nil {
		logger.WithError(err).Fatal("seed failed")
	}
	logger.Info("demo data seeded")
}

func seed(ctx context.Context, store core.Store, exec func(string, ...any) error, logger *logrus.Logger) error {
	accounts := core.NewAccountService(store)

	logger.Info("restoring station inventory")
	if err := exec(`
		INSERT INTO station_inventory (station_id, product_id, stock_quantity)
		VALUES (?, ?, ?)
		ON CONFLICT (station_id, product_id) DO UPDATE SET stock_quantity = excluded.stock_quantity`,
		demoStation, demoProduct, decimal.NewFromInt(5000)); err != nil {
		return fmt.Errorf("failed to seed inventory: %w", err)
	}

	since := time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	for _, c := range demoCustomers {
		entry := logger.WithFields(logrus.Fields{"customer_id": c.id, "plan": c.plan})

		acct, outcome, err := accounts.EnsureAccount(ctx, c.id, c.plan, c.dailyCap)
		if err != nil {
			return err
		}
		entry.WithField("outcome", outcome).Info("account ready")

		if err := exec(`UPDATE customer_accounts SET balance = ?, credit_limit = ? WHERE customer_id = ?`,
			decimal.NewFromInt(1000), decimal.NewFromInt(5000), acct.CustomerID); err != nil {
			return fmt.Errorf("failed to reset ledgers for customer %d: %w", c.id, err)
		}

		if err := exec(`DELETE FROM station_prices WHERE station_id = ? AND product_id = ? AND customer_id = ?`,
			demoStation, demoProduct, c.id); err != nil {
			return fmt.Errorf("failed to clear prices for customer %d: %w", c.id, err)
		}
		if err := exec(`
			INSERT INTO station_prices (station_id, product_id, customer_id, unit_price, effective_from)
			VALUES (?, ?, ?, ?, ?)`,
			demoStation, demoProduct, c.id, c.price, since); err != nil {
			return fmt.Errorf("failed to seed price for customer %d: %w", c.id, err)
		}

		if err := exec(`DELETE FROM delivery_adjustments WHERE transaction_id = ?`, c.delivery); err != nil {
			return fmt.Errorf("failed to clear adjustments of delivery %d: %w", c.delivery, err)
		}
		if err := exec(`
			INSERT INTO delivery_transactions
			    (id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity, unit_price_at_fulfillment)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET requested_quantity = excluded.requested_quantity,
			    fulfilled_quantity = excluded.fulfilled_quantity,
			    unit_price_at_fulfillment = excluded.unit_price_at_fulfillment,
			    remarks = '',
			    revision = 0`,
			c.delivery, demoStation, demoProduct, c.id, c.quantity, c.quantity, c.price); err != nil {
			return fmt.Errorf("failed to seed delivery %d: %w", c.delivery, err)
		}
		entry.WithField("delivery_id", c.delivery).Info("delivery ready")
	}
	return nil
}

// rebind turns ? placeholders into Postgres $n placeholders.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
