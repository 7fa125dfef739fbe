package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "store.db"), time.Second)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, ctx
}

func mustExec(t *testing.T, s *Store, ctx context.Context, query string, args ...any) {
	t.Helper()
	if err := s.Exec(ctx, query, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path, time.Second)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
		s.Close()
	}
}

func TestGetters_NotFound(t *testing.T) {
	s, ctx := openTestStore(t)

	if _, err := s.GetDelivery(ctx, 1); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := s.GetAccount(ctx, 1); !errors.Is(err, core.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := s.GetInventory(ctx, 1, 1); !errors.Is(err, core.ErrInventoryNotFound) {
		t.Errorf("expected ErrInventoryNotFound, got %v", err)
	}
}

func TestLookupPrice_Window(t *testing.T) {
	s, ctx := openTestStore(t)
	key := core.PriceKey{StationID: 1, ProductID: 2, CustomerID: 3}
	mustExec(t, s, ctx, `
		INSERT INTO station_prices (station_id, product_id, customer_id, unit_price, effective_from, effective_to)
		VALUES (1, 2, 3, '8.75', '2024-01-01', '2024-01-31'),
		       (1, 2, 3, '9.10', '2024-02-01', NULL)`)

	tests := []struct {
		day       string
		want      string
		wantFound bool
	}{
		{"2023-12-31", "", false},
		{"2024-01-01", "8.75", true},
		{"2024-01-31", "8.75", true},
		{"2024-02-01", "9.10", true},
		{"2030-06-01", "9.10", true},
	}
	for _, tt := range tests {
		asOf, _ := time.Parse(dateLayout, tt.day)
		price, found, err := s.LookupPrice(ctx, key, asOf)
		if err != nil {
			t.Fatalf("LookupPrice(%s) failed: %v", tt.day, err)
		}
		if found != tt.wantFound {
			t.Errorf("%s: found=%v, want %v", tt.day, found, tt.wantFound)
			continue
		}
		if found && !price.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s: got %s, want %s", tt.day, price, tt.want)
		}
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s, ctx := openTestStore(t)
	mustExec(t, s, ctx, `INSERT INTO station_inventory (station_id, product_id, stock_quantity) VALUES (1, 1, '10')`)

	errStop := errors.New("stop")
	err := s.InTx(ctx, func(tx core.Tx) error {
		if err := tx.AddStock(ctx, 1, 1, decimal.NewFromInt(-4)); err != nil {
			return err
		}
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected errStop, got %v", err)
	}
	inv, err := s.GetInventory(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetInventory failed: %v", err)
	}
	if !inv.StockQuantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected stock 10 after rollback, got %s", inv.StockQuantity)
	}
}

func TestUpdateDelivery_RevisionGuard(t *testing.T) {
	s, ctx := openTestStore(t)
	mustExec(t, s, ctx, `
		INSERT INTO delivery_transactions (id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity)
		VALUES (5, 1, 1, 1, '10', '10')`)

	err := s.InTx(ctx, func(tx core.Tx) error {
		d, err := tx.LockDelivery(ctx, 5)
		if err != nil {
			return err
		}
		d.FulfilledQuantity = decimal.NewFromInt(12)
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return err
		}
		if d.Revision != 1 {
			t.Errorf("expected revision 1 after update, got %d", d.Revision)
		}
		stale := *d
		stale.Revision = 0
		return tx.UpdateDelivery(ctx, &stale)
	})
	if !errors.Is(err, core.ErrConcurrentConflict) {
		t.Fatalf("expected ErrConcurrentConflict for a stale revision, got %v", err)
	}

	d, _ := s.GetDelivery(ctx, 5)
	if d.Revision != 0 || !d.FulfilledQuantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected the whole scope rolled back, got revision %d qty %s", d.Revision, d.FulfilledQuantity)
	}
}

func TestInsertAdjustment_DuplicateRevisionConflicts(t *testing.T) {
	s, ctx := openTestStore(t)
	mustExec(t, s, ctx, `
		INSERT INTO delivery_transactions (id, station_id, product_id, customer_id, requested_quantity, fulfilled_quantity)
		VALUES (5, 1, 1, 1, '10', '10')`)

	adj := core.ComputeDelta(5, decimal.NewFromInt(10), decimal.NewFromInt(12), decimal.NewFromInt(3))
	if err := s.InTx(ctx, func(tx core.Tx) error { return tx.InsertAdjustment(ctx, &adj) }); err != nil {
		t.Fatalf("InsertAdjustment failed: %v", err)
	}
	if adj.CreatedAt.IsZero() {
		t.Error("expected created_at set on insert")
	}

	dup := adj
	err := s.InTx(ctx, func(tx core.Tx) error { return tx.InsertAdjustment(ctx, &dup) })
	if !errors.Is(err, core.ErrConcurrentConflict) {
		t.Fatalf("expected ErrConcurrentConflict, got %v", err)
	}

	list, err := s.ListAdjustments(ctx, 5)
	if err != nil {
		t.Fatalf("ListAdjustments failed: %v", err)
	}
	if len(list) != 1 || list[0].Direction != core.DirectionIncrease || !list[0].MonetaryDelta.Equal(decimal.NewFromInt(6)) {
		t.Errorf("unexpected adjustments %+v", list)
	}
}

func TestAddDailyUsed_ClampsAtZero(t *testing.T) {
	s, ctx := openTestStore(t)
	mustExec(t, s, ctx, `
		INSERT INTO customer_accounts (customer_id, balance, credit_limit, daily_cap, daily_used, plan_type)
		VALUES (1, '0', '0', '100', '30', 'daily_capped')`)

	err := s.InTx(ctx, func(tx core.Tx) error {
		return tx.AddDailyUsed(ctx, 1, decimal.NewFromInt(-50))
	})
	if err != nil {
		t.Fatalf("AddDailyUsed failed: %v", err)
	}
	acct, _ := s.GetAccount(ctx, 1)
	if !acct.DailyUsed.Valid || !acct.DailyUsed.Decimal.IsZero() {
		t.Errorf("expected daily used clamped to 0, got %+v", acct.DailyUsed)
	}
}

func TestUpsertAccount(t *testing.T) {
	s, ctx := openTestStore(t)
	plan := core.AccountPlan{CustomerID: 9, PlanType: core.PlanPostpaid}

	var outcome core.ProvisionOutcome
	err := s.InTx(ctx, func(tx core.Tx) error {
		var err error
		_, outcome, err = tx.UpsertAccount(ctx, plan)
		return err
	})
	if err != nil || outcome != core.ProvisionCreated {
		t.Fatalf("expected created, got %s (err %v)", outcome, err)
	}

	mustExec(t, s, ctx, `UPDATE customer_accounts SET balance = '42' WHERE customer_id = 9`)
	plan.PlanType = core.PlanDailyCapped
	plan.DailyCap = decimal.NewNullDecimal(decimal.NewFromInt(200))

	var acct *core.CustomerAccount
	err = s.InTx(ctx, func(tx core.Tx) error {
		var err error
		acct, outcome, err = tx.UpsertAccount(ctx, plan)
		return err
	})
	if err != nil || outcome != core.ProvisionUpdated {
		t.Fatalf("expected updated, got %s (err %v)", outcome, err)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(42)) {
		t.Errorf("plan change must keep ledgers, balance is %s", acct.Balance)
	}
	if !acct.DailyUsed.Valid || !acct.DailyUsed.Decimal.IsZero() {
		t.Errorf("expected daily usage initialised, got %+v", acct.DailyUsed)
	}
}

func TestInTx_BusyScopeFailsFast(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "busy.db"), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(ctx, func(tx core.Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	start := time.Now()
	err = s.InTx(ctx, func(tx core.Tx) error { return nil })
	if !errors.Is(err, core.ErrConcurrentConflict) {
		t.Errorf("expected ErrConcurrentConflict while another scope is open, got %v", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("expected to fail within the busy timeout, waited %s", waited)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holding scope failed: %v", err)
	}
	if err := s.InTx(ctx, func(tx core.Tx) error { return nil }); err != nil {
		t.Errorf("expected the scope to be free again, got %v", err)
	}
}
