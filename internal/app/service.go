package app

import (
	"context"

	"delivery-reconciler/internal/core"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// ReconcileDelivery applies an edit of a delivery's fulfilled quantity to the customer and
	// station ledgers. Concurrent-conflict rollbacks are retried with backoff; the returned
	// result reflects the final attempt and is non-nil even on error once validation passed.
	ReconcileDelivery(ctx context.Context, req ReconcileDeliveryRequest) (*ReconcileDeliveryResult, error)

	// EnsureAccount creates a customer account or updates its plan and daily cap.
	EnsureAccount(ctx context.Context, req EnsureAccountRequest) (*AccountResult, error)

	// GetAccount returns a customer's ledgers.
	GetAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error)

	// GetInventory returns a station's on-hand stock of a product.
	GetInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error)

	// GetDelivery returns a delivery transaction by ID.
	GetDelivery(ctx context.Context, transactionID int64) (*core.DeliveryTransaction, error)

	// ListAdjustments returns the committed ledger adjustments of a delivery, oldest first.
	ListAdjustments(ctx context.Context, transactionID int64) (*AdjustmentListResult, error)

	// ResolvePrice previews the unit price a reconciliation would use.
	ResolvePrice(ctx context.Context, key core.PriceKey) (core.Price, error)

	// InvalidatePrice drops a cached preview price after the price table was edited.
	// It is a no-op when no price cache is configured.
	InvalidatePrice(ctx context.Context, key core.PriceKey) error

	// Health pings the store.
	Health(ctx context.Context) error
}
