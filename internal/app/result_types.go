package app

import "delivery-reconciler/internal/core"

// ReconcileDeliveryResult is returned by ReconcileDelivery.
type ReconcileDeliveryResult struct {
	*core.ReconcileResult
	Attempts int `json:"attempts"`
}

// AccountResult is returned by EnsureAccount.
type AccountResult struct {
	Account *core.CustomerAccount `json:"account"`
	Outcome core.ProvisionOutcome `json:"outcome"`
}

// AdjustmentListResult is returned by ListAdjustments.
type AdjustmentListResult struct {
	TransactionID int64                   `json:"transaction_id"`
	Adjustments   []core.LedgerAdjustment `json:"adjustments"`
}
