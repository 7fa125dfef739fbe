package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReconcileStatus is the caller-facing outcome of a reconciliation.
type ReconcileStatus string

const (
	StatusCommitted ReconcileStatus = "committed"
	StatusPartial   ReconcileStatus = "partial" // quantity saved, ledgers untouched: no price configured
	StatusFailed    ReconcileStatus = "failed"
)

// ReconcileState is a step of a single reconciliation attempt:
//
//	started → price_resolved | price_missing → computed → committed | rolled_back
//
// An unchanged quantity skips price resolution and goes straight to computed.
type ReconcileState string

const (
	StateStarted       ReconcileState = "started"
	StatePriceResolved ReconcileState = "price_resolved"
	StatePriceMissing  ReconcileState = "price_missing"
	StateComputed      ReconcileState = "computed"
	StateCommitted     ReconcileState = "committed"
	StateRolledBack    ReconcileState = "rolled_back"
)

// ReconcileRequest is one edit of a delivery. RequestedQuantity and Remarks are optional
// non-quantity edits persisted in the same scope.
type ReconcileRequest struct {
	TransactionID     int64
	FulfilledQuantity decimal.Decimal
	RequestedQuantity *decimal.Decimal
	Remarks           *string
}

func (r ReconcileRequest) validate() error {
	if r.TransactionID <= 0 {
		return fmt.Errorf("%w: transaction id must be positive, got %d", ErrInvalidQuantity, r.TransactionID)
	}
	if r.FulfilledQuantity.IsNegative() {
		return fmt.Errorf("%w: fulfilled quantity cannot be negative, got %s", ErrInvalidQuantity, r.FulfilledQuantity)
	}
	if r.RequestedQuantity != nil && r.RequestedQuantity.IsNegative() {
		return fmt.Errorf("%w: requested quantity cannot be negative, got %s", ErrInvalidQuantity, *r.RequestedQuantity)
	}
	return nil
}

// editsFields reports whether applying r's optional fields would change d.
func (r ReconcileRequest) editsFields(d *DeliveryTransaction) bool {
	if r.RequestedQuantity != nil && !r.RequestedQuantity.Equal(d.RequestedQuantity) {
		return true
	}
	return r.Remarks != nil && *r.Remarks != d.Remarks
}

func (r ReconcileRequest) applyFields(d *DeliveryTransaction) {
	if r.RequestedQuantity != nil {
		d.RequestedQuantity = *r.RequestedQuantity
	}
	if r.Remarks != nil {
		d.Remarks = *r.Remarks
	}
}

// ReconcileResult describes what a reconciliation did. On failure Status is failed, State is
// rolled_back and nothing from the attempt was persisted.
type ReconcileResult struct {
	Status           ReconcileStatus      `json:"status"`
	State            ReconcileState       `json:"state"`
	Trail            []ReconcileState     `json:"trail"`
	Transaction      *DeliveryTransaction `json:"transaction,omitempty"`
	Adjustment       LedgerAdjustment     `json:"adjustment"`
	Account          *CustomerAccount     `json:"account,omitempty"`
	Inventory        *StationInventory    `json:"inventory,omitempty"`
	DailyCapExceeded bool                 `json:"daily_cap_exceeded"`
	Warnings         []string             `json:"warnings,omitempty"`
}

func (r *ReconcileResult) advance(s ReconcileState) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

// Reconciler applies delivery edits to the customer and station ledgers.
type Reconciler interface {
	// Reconcile moves the delivery's fulfilled quantity to req.FulfilledQuantity and applies the
	// matching ledger adjustment in one atomic commit scope. On error the returned result is
	// still non-nil and carries the failed status.
	Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error)
}

type reconciler struct {
	store  Store
	prices PriceResolver
	ledger LedgerStore
	log    logrus.FieldLogger
}

// NewReconciler constructs a Reconciler. prices must read the price table directly so each
// reconciliation charges the price in effect when it runs.
func NewReconciler(store Store, prices PriceResolver, ledger LedgerStore, log logrus.FieldLogger) Reconciler {
	return &reconciler{store: store, prices: prices, ledger: ledger, log: log}
}

func (c *reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	res := &ReconcileResult{}
	res.advance(StateStarted)

	if err := req.validate(); err != nil {
		return c.fail(res, req, err)
	}

	d, err := c.store.GetDelivery(ctx, req.TransactionID)
	if err != nil {
		return c.fail(res, req, err)
	}
	res.Transaction = d
	oldQty := d.FulfilledQuantity

	if oldQty.Equal(req.FulfilledQuantity) {
		res.Adjustment = ComputeDelta(d.ID, oldQty, oldQty, decimal.Zero)
		res.Adjustment.Revision = d.Revision
		res.advance(StateComputed)
		if req.editsFields(d) {
			updated, err := c.saveDelivery(ctx, d.ID, d.Revision, func(locked *DeliveryTransaction) {
				req.applyFields(locked)
			})
			if err != nil {
				return c.fail(res, req, err)
			}
			res.Transaction = updated
		}
		res.Status = StatusCommitted
		res.advance(StateCommitted)
		c.logOutcome(res, req)
		return res, nil
	}

	price, err := c.prices.ResolvePrice(ctx, d.PriceKey())
	if err != nil {
		return c.fail(res, req, err)
	}

	if !price.Configured {
		res.advance(StatePriceMissing)
		res.Adjustment = ComputeDelta(d.ID, oldQty, oldQty, decimal.Zero)
		res.Adjustment.Revision = d.Revision
		res.advance(StateComputed)
		updated, err := c.saveDelivery(ctx, d.ID, d.Revision, func(locked *DeliveryTransaction) {
			locked.FulfilledQuantity = req.FulfilledQuantity
			locked.UnitPriceAtFulfillment = decimal.NullDecimal{}
			req.applyFields(locked)
		})
		if err != nil {
			return c.fail(res, req, err)
		}
		res.Transaction = updated
		res.Status = StatusPartial
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"no unit price configured for %s; fulfilled quantity saved without balance or stock adjustment",
			d.PriceKey()))
		res.advance(StateCommitted)
		c.logOutcome(res, req)
		return res, nil
	}

	res.advance(StatePriceResolved)
	adj := ComputeDelta(d.ID, oldQty, req.FulfilledQuantity, price.Amount)
	adj.Revision = d.Revision
	res.Adjustment = adj
	res.advance(StateComputed)

	var (
		updated *DeliveryTransaction
		ledger  *LedgerResult
	)
	err = c.store.InTx(ctx, func(tx Tx) error {
		locked, err := lockAtRevision(ctx, tx, d.ID, d.Revision)
		if err != nil {
			return err
		}
		ledger, err = c.ledger.ApplyAdjustmentTx(ctx, tx, locked.LedgerKeys(), adj)
		if err != nil {
			return err
		}
		if err := tx.InsertAdjustment(ctx, &adj); err != nil {
			return fmt.Errorf("failed to journal adjustment for transaction %d: %w", d.ID, err)
		}
		locked.FulfilledQuantity = req.FulfilledQuantity
		locked.UnitPriceAtFulfillment = decimal.NewNullDecimal(price.Amount)
		req.applyFields(locked)
		if err := tx.UpdateDelivery(ctx, locked); err != nil {
			return fmt.Errorf("failed to update transaction %d: %w", d.ID, err)
		}
		updated = locked
		return nil
	})
	if err != nil {
		return c.fail(res, req, err)
	}

	res.Transaction = updated
	res.Adjustment = adj
	res.Account = ledger.Account
	res.Inventory = ledger.Inventory
	res.DailyCapExceeded = ledger.DailyCapExceeded
	if ledger.DailyCapExceeded {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"customer %d has exceeded the daily cap", ledger.Account.CustomerID))
	}
	if ledger.Inventory.StockQuantity.IsNegative() {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"station %d product %d stock is negative (%s)",
			ledger.Inventory.StationID, ledger.Inventory.ProductID, ledger.Inventory.StockQuantity))
	}
	res.Status = StatusCommitted
	res.advance(StateCommitted)
	c.logOutcome(res, req)
	return res, nil
}

// saveDelivery persists a delivery edit that carries no ledger effect.
func (c *reconciler) saveDelivery(ctx context.Context, id, revision int64, edit func(*DeliveryTransaction)) (*DeliveryTransaction, error) {
	var updated *DeliveryTransaction
	err := c.store.InTx(ctx, func(tx Tx) error {
		locked, err := lockAtRevision(ctx, tx, id, revision)
		if err != nil {
			return err
		}
		edit(locked)
		if err := tx.UpdateDelivery(ctx, locked); err != nil {
			return fmt.Errorf("failed to update transaction %d: %w", id, err)
		}
		updated = locked
		return nil
	})
	return updated, err
}

// lockAtRevision locks the delivery row and checks nobody committed an edit since it was read.
func lockAtRevision(ctx context.Context, tx Tx, id, revision int64) (*DeliveryTransaction, error) {
	locked, err := tx.LockDelivery(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction %d: %w", id, err)
	}
	if locked.Revision != revision {
		return nil, fmt.Errorf("%w: transaction %d moved from revision %d to %d",
			ErrConcurrentConflict, id, revision, locked.Revision)
	}
	return locked, nil
}

func (c *reconciler) fail(res *ReconcileResult, req ReconcileRequest, err error) (*ReconcileResult, error) {
	res.Status = StatusFailed
	res.advance(StateRolledBack)
	entry := c.log.WithFields(logrus.Fields{
		"transaction_id": req.TransactionID,
		"fulfilled_qty":  req.FulfilledQuantity.String(),
		"trail":          res.Trail,
	}).WithError(err)
	switch {
	case errors.Is(err, ErrConcurrentConflict):
		entry.Warn("reconciliation rolled back on conflict")
	case IsNotFound(err), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInsufficientStock):
		entry.Info("reconciliation rejected")
	default:
		entry.Error("reconciliation failed")
	}
	return res, err
}

func (c *reconciler) logOutcome(res *ReconcileResult, req ReconcileRequest) {
	entry := c.log.WithFields(logrus.Fields{
		"transaction_id": req.TransactionID,
		"status":         res.Status,
		"from_qty":       res.Adjustment.FromQuantity.String(),
		"to_qty":         req.FulfilledQuantity.String(),
		"monetary_delta": res.Adjustment.MonetaryDelta.String(),
	})
	if res.Status == StatusPartial {
		entry.Warn("reconciliation partial: price not configured")
		return
	}
	entry.Debug("reconciliation committed")
}
