package cli_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"delivery-reconciler/internal/adapters/cli"
	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/core"
	"delivery-reconciler/internal/store/sqlite"

	"github.com/sirupsen/logrus"
)

func setupCLI(t *testing.T) (app.ApplicationService, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "cli.db"), time.Second)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	prices := core.NewPriceResolver(store)
	reconciler := core.NewReconciler(store, prices, core.NewLedgerStore(store, core.StockAllowBackorder), log)
	svc := app.NewAppService(store, reconciler, core.NewAccountService(store), prices,
		app.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}, log)
	return svc, store
}

func run(t *testing.T, svc app.ApplicationService, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cli.Run(context.Background(), svc, args, &out)
	return out.String(), err
}

func TestRun_ReconcileFlow(t *testing.T) {
	svc, store := setupCLI(t)
	ctx := context.Background()

	out, err := run(t, svc, "ensure-account", "5", "daily_capped", "400")
	if err != nil {
		t.Fatalf("ensure-account failed: %v", err)
	}
	if !strings.Contains(out, "Account created.") {
		t.Errorf("expected created outcome, got:\n%s", out)
	}

	for _, stmt := range []string{
		`INSERT INTO station_inventory (station_id, product_id, stock_quantity) VALUES (1, 2, '500')`,
		`INSERT INTO station_prices (station_id, product_id, customer_id, unit_price, effective_from)
		 VALUES (1, 2, 5, '4', date('now', '-3 days'))`,
		`INSERT INTO delivery_transactions (id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity)
		 VALUES (31, 1, 2, 5, '50', '50')`,
	} {
		if err := store.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	out, err = run(t, svc, "reconcile", "31", "60", "topped", "up")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	for _, want := range []string{"COMMITTED", "50 -> 60 (increase)", "40.0000 @ 4.0000", "490.0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, svc, "delivery", "31")
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if !strings.Contains(out, "topped up") || !strings.Contains(out, "revision 1") {
		t.Errorf("expected remarks and revision in output:\n%s", out)
	}

	out, err = run(t, svc, "adj", "31")
	if err != nil {
		t.Fatalf("adjustments failed: %v", err)
	}
	if !strings.Contains(out, "increase") {
		t.Errorf("expected the journaled adjustment:\n%s", out)
	}

	out, err = run(t, svc, "account", "5")
	if err != nil {
		t.Fatalf("account failed: %v", err)
	}
	if !strings.Contains(out, "40.0000 / 400.0000") {
		t.Errorf("expected daily usage line:\n%s", out)
	}

	out, err = run(t, svc, "stock", "1", "2")
	if err != nil {
		t.Fatalf("stock failed: %v", err)
	}
	if !strings.Contains(out, "490.0000 on hand") {
		t.Errorf("unexpected stock output: %s", out)
	}

	out, err = run(t, svc, "price", "1", "2", "5")
	if err != nil {
		t.Fatalf("price failed: %v", err)
	}
	if !strings.Contains(out, "4.0000") {
		t.Errorf("unexpected price output: %s", out)
	}
	out, err = run(t, svc, "price", "1", "2", "6")
	if err != nil {
		t.Fatalf("price failed: %v", err)
	}
	if !strings.Contains(out, "No price configured") {
		t.Errorf("unexpected price output: %s", out)
	}

	out, err = run(t, svc, "invalidate-price", "1", "2", "5")
	if err != nil {
		t.Fatalf("invalidate-price failed: %v", err)
	}
	if !strings.Contains(out, "Cached price dropped") {
		t.Errorf("unexpected invalidate-price output: %s", out)
	}
	if _, err := run(t, svc, "invalidate-price", "1", "x", "5"); err == nil {
		t.Error("expected an error for a bad product id")
	}
}

func TestRun_Errors(t *testing.T) {
	svc, _ := setupCLI(t)

	if _, err := run(t, svc); err == nil {
		t.Error("expected an error without a command")
	}
	if _, err := run(t, svc, "frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
	if _, err := run(t, svc, "reconcile", "x", "1"); err == nil {
		t.Error("expected an invalid id error")
	}
	if _, err := run(t, svc, "reconcile", "1", "lots"); err == nil {
		t.Error("expected an invalid quantity error")
	}

	out, err := run(t, svc, "reconcile", "999", "5")
	if !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("expected the failed result printed, got:\n%s", out)
	}
}
