package core

import "errors"

var (
	// ErrPriceNotConfigured is not a failure of Reconcile: a missing price yields a partial result.
	// Resolvers used outside reconciliation may return it when a price is mandatory.
	ErrPriceNotConfigured = errors.New("reconcile: price not configured")

	ErrAccountNotFound     = errors.New("reconcile: customer account not found")
	ErrInventoryNotFound   = errors.New("reconcile: station inventory not found")
	ErrTransactionNotFound = errors.New("reconcile: delivery transaction not found")

	// ErrConcurrentConflict means another commit scope held or changed a row we needed.
	// Nothing was written; re-invoke with the same inputs.
	ErrConcurrentConflict = errors.New("reconcile: concurrent conflicting update")

	// ErrStoreUnavailable means the persistent store could not be reached or failed to commit.
	ErrStoreUnavailable = errors.New("reconcile: store unavailable")

	ErrInsufficientStock = errors.New("reconcile: insufficient station stock")
	ErrInvalidQuantity   = errors.New("reconcile: invalid quantity")
	ErrInvalidPlan       = errors.New("reconcile: invalid account plan")
)

// IsRetryable reports whether the operation that returned err can be re-invoked unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentConflict)
}

// IsNotFound reports whether err names a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
