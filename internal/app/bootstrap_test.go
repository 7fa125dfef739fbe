package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"delivery-reconciler/internal/config"
	"delivery-reconciler/internal/core"
	"delivery-reconciler/internal/store/sqlite"

	"github.com/shopspring/decimal"
)

func TestBootstrap_SQLite(t *testing.T) {
	for _, cacheType := range []string{"none", "memory"} {
		t.Run(cacheType, func(t *testing.T) {
			cfg := &config.Config{
				Database: config.DatabaseConfig{
					Driver:            "sqlite",
					SQLitePath:        filepath.Join(t.TempDir(), "boot.db"),
					SQLiteBusyTimeout: time.Second,
				},
				Cache:  config.CacheConfig{Type: cacheType, TTL: time.Minute},
				Engine: config.EngineConfig{StockPolicy: "reject_negative", MaxRetries: 2, RetryInterval: time.Millisecond},
			}

			svc, cleanup, err := Bootstrap(context.Background(), cfg, quietLogger())
			if err != nil {
				t.Fatalf("Bootstrap failed: %v", err)
			}
			defer cleanup()

			if err := svc.Health(context.Background()); err != nil {
				t.Errorf("Health failed: %v", err)
			}
		})
	}
}

func TestBootstrap_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}
	if _, _, err := Bootstrap(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestBootstrap_PriceCacheNeverStalesReconciliation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cached.db")
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: path, SQLiteBusyTimeout: time.Second},
		Cache:    config.CacheConfig{Type: "memory", TTL: time.Minute},
		Engine:   config.EngineConfig{StockPolicy: "allow_backorder", MaxRetries: 2, RetryInterval: time.Millisecond},
	}
	svc, cleanup, err := Bootstrap(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer cleanup()

	// The price table is edited outside the service, as a back-office screen would.
	editor, err := sqlite.Open(ctx, path, time.Second)
	if err != nil {
		t.Fatalf("failed to open editor store: %v", err)
	}
	defer editor.Close()
	exec := func(stmt string) {
		t.Helper()
		if err := editor.Exec(ctx, stmt); err != nil {
			t.Fatalf("exec failed: %v", err)
		}
	}

	if _, err := svc.EnsureAccount(ctx, EnsureAccountRequest{CustomerID: 5, PlanType: "postpaid"}); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	exec(`UPDATE customer_accounts SET balance = '1000', credit_limit = '5000' WHERE customer_id = 5`)
	exec(`INSERT INTO station_inventory (station_id, product_id, stock_quantity) VALUES (2, 3, '1000')`)
	exec(`INSERT INTO delivery_transactions (id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity)
	      VALUES (77, 2, 3, 5, '100', '100')`)

	key := core.PriceKey{StationID: 2, ProductID: 3, CustomerID: 5}
	reconcile := func(qty int64) *ReconcileDeliveryResult {
		t.Helper()
		res, err := svc.ReconcileDelivery(ctx, ReconcileDeliveryRequest{TransactionID: 77, FulfilledQuantity: decimal.NewFromInt(qty)})
		if err != nil {
			t.Fatalf("ReconcileDelivery(%d) failed: %v", qty, err)
		}
		return res
	}

	if p, _ := svc.ResolvePrice(ctx, key); p.Configured {
		t.Fatal("expected no price yet")
	}
	if res := reconcile(110); res.Status != core.StatusPartial {
		t.Fatalf("expected partial without a price, got %s", res.Status)
	}

	exec(`INSERT INTO station_prices (station_id, product_id, customer_id, unit_price, effective_from)
	      VALUES (2, 3, 5, '10', date('now', '-1 day'))`)
	res := reconcile(140)
	if res.Status != core.StatusCommitted {
		t.Fatalf("expected committed once the price exists, got %s", res.Status)
	}
	if !res.Account.Balance.Equal(decimal.NewFromInt(1300)) {
		t.Errorf("expected balance 1300, got %s", res.Account.Balance)
	}

	// Warm the preview cache, then change the price behind it.
	if p, _ := svc.ResolvePrice(ctx, key); !p.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected preview 10, got %s", p.Amount)
	}
	exec(`UPDATE station_prices SET unit_price = '20'`)

	res = reconcile(150)
	if !res.Adjustment.UnitPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("reconciliation must charge the current price 20, got %s", res.Adjustment.UnitPrice)
	}
	if !res.Account.Balance.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expected balance 1500, got %s", res.Account.Balance)
	}

	if p, _ := svc.ResolvePrice(ctx, key); !p.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected the cached preview until invalidated, got %s", p.Amount)
	}
	if err := svc.InvalidatePrice(ctx, key); err != nil {
		t.Fatalf("InvalidatePrice failed: %v", err)
	}
	if p, _ := svc.ResolvePrice(ctx, key); !p.Amount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected preview 20 after invalidation, got %s", p.Amount)
	}
}
