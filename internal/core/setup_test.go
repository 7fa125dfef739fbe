package core_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"delivery-reconciler/internal/core"
	"delivery-reconciler/internal/store/sqlite"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	testStation  = 1
	testProduct  = 7
	testCustomer = 42
)

// setupTestStore opens a fresh SQLite store in the test's temp dir.
func setupTestStore(t *testing.T) (*sqlite.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "reconcile.db"), 2*time.Second)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, ctx
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newReconciler(store core.Store, policy core.StockPolicy) core.Reconciler {
	return core.NewReconciler(store, core.NewPriceResolver(store), core.NewLedgerStore(store, policy), quietLogger())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedAccount(t *testing.T, ctx context.Context, store *sqlite.Store, customerID int64, plan core.PlanType, balance, credit string) {
	t.Helper()
	var dailyCap, dailyUsed any
	if plan.IsDailyCapped() {
		dailyCap, dailyUsed = "0", "0"
	}
	err := store.Exec(ctx, `
		INSERT INTO customer_accounts (customer_id, balance, credit_limit, daily_cap, daily_used, plan_type)
		VALUES (?, ?, ?, ?, ?, ?)`,
		customerID, balance, credit, dailyCap, dailyUsed, string(plan))
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
}

func seedDailyCap(t *testing.T, ctx context.Context, store *sqlite.Store, customerID int64, dailyCap, dailyUsed string) {
	t.Helper()
	err := store.Exec(ctx, `UPDATE customer_accounts SET daily_cap = ?, daily_used = ? WHERE customer_id = ?`,
		dailyCap, dailyUsed, customerID)
	if err != nil {
		t.Fatalf("failed to seed daily cap: %v", err)
	}
}

func seedInventory(t *testing.T, ctx context.Context, store *sqlite.Store, stationID, productID int64, stock string) {
	t.Helper()
	err := store.Exec(ctx, `INSERT INTO station_inventory (station_id, product_id, stock_quantity) VALUES (?, ?, ?)`,
		stationID, productID, stock)
	if err != nil {
		t.Fatalf("failed to seed inventory: %v", err)
	}
}

// seedPrice adds a price effective from daysAgo days before today, open-ended.
func seedPrice(t *testing.T, ctx context.Context, store *sqlite.Store, price string, daysAgo int) {
	t.Helper()
	from := time.Now().AddDate(0, 0, -daysAgo).Format("2006-01-02")
	err := store.Exec(ctx, `
		INSERT INTO station_prices (station_id, product_id, customer_id, unit_price, effective_from)
		VALUES (?, ?, ?, ?, ?)`,
		testStation, testProduct, testCustomer, price, from)
	if err != nil {
		t.Fatalf("failed to seed price: %v", err)
	}
}

func seedDelivery(t *testing.T, ctx context.Context, store *sqlite.Store, fulfilled string) int64 {
	t.Helper()
	res, err := store.DB().ExecContext(ctx, `
		INSERT INTO delivery_transactions (station_id, product_id, customer_id, requested_quantity, fulfilled_quantity)
		VALUES (?, ?, ?, ?, ?)`,
		testStation, testProduct, testCustomer, fulfilled, fulfilled)
	if err != nil {
		t.Fatalf("failed to seed delivery: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to read delivery id: %v", err)
	}
	return id
}

// seedStandard seeds the ledger rows every reconciliation test starts from:
// balance 1000, credit 5000, stock 1000, price 10 and a delivery of 100.
func seedStandard(t *testing.T, ctx context.Context, store *sqlite.Store, plan core.PlanType) int64 {
	t.Helper()
	seedAccount(t, ctx, store, testCustomer, plan, "1000", "5000")
	seedInventory(t, ctx, store, testStation, testProduct, "1000")
	seedPrice(t, ctx, store, "10", 1)
	return seedDelivery(t, ctx, store, "100")
}

type ledgerState struct {
	balance, credit, stock decimal.Decimal
	dailyUsed              decimal.NullDecimal
}

func readLedgers(t *testing.T, ctx context.Context, store core.Store) ledgerState {
	t.Helper()
	acct, err := store.GetAccount(ctx, testCustomer)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	inv, err := store.GetInventory(ctx, testStation, testProduct)
	if err != nil {
		t.Fatalf("GetInventory failed: %v", err)
	}
	return ledgerState{balance: acct.Balance, credit: acct.CreditLimit, stock: inv.StockQuantity, dailyUsed: acct.DailyUsed}
}

func assertDecimal(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}
