package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-reconciler/internal/core"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds how ReconcileDelivery re-invokes an attempt that lost a concurrent conflict.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
}

type appService struct {
	store      core.Store
	reconciler core.Reconciler
	accounts   core.AccountService
	prices     core.PriceResolver
	retry      RetryPolicy
	log        logrus.FieldLogger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	store core.Store,
	reconciler core.Reconciler,
	accounts core.AccountService,
	prices core.PriceResolver,
	retry RetryPolicy,
	log logrus.FieldLogger,
) ApplicationService {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	return &appService{
		store:      store,
		reconciler: reconciler,
		accounts:   accounts,
		prices:     prices,
		retry:      retry,
		log:        log,
	}
}

// ReconcileDelivery validates req and reconciles, retrying ErrConcurrentConflict only.
func (s *appService) ReconcileDelivery(ctx context.Context, req ReconcileDeliveryRequest) (*ReconcileDeliveryResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	coreReq := core.ReconcileRequest{
		TransactionID:     req.TransactionID,
		FulfilledQuantity: req.FulfilledQuantity,
		RequestedQuantity: req.RequestedQuantity,
		Remarks:           req.Remarks,
	}

	var (
		attempts int
		last     *core.ReconcileResult
	)
	op := func() (*core.ReconcileResult, error) {
		attempts++
		res, err := s.reconciler.Reconcile(ctx, coreReq)
		last = res
		if err != nil && !core.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		b.InitialInterval = s.retry.InitialInterval
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retry.MaxAttempts),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	entry := s.log.WithFields(logrus.Fields{
		"transaction_id": req.TransactionID,
		"attempts":       attempts,
	})
	if err != nil {
		if core.IsRetryable(err) {
			entry.WithError(err).Warn("reconciliation gave up after repeated conflicts")
		}
		if last == nil {
			return nil, err
		}
		return &ReconcileDeliveryResult{ReconcileResult: last, Attempts: attempts}, err
	}
	if attempts > 1 {
		entry.WithField("status", last.Status).Info("reconciliation succeeded after retry")
	}
	return &ReconcileDeliveryResult{ReconcileResult: last, Attempts: attempts}, nil
}

func (s *appService) EnsureAccount(ctx context.Context, req EnsureAccountRequest) (*AccountResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var dailyCap decimal.NullDecimal
	if req.DailyCap != nil {
		dailyCap = decimal.NewNullDecimal(*req.DailyCap)
	}

	acct, outcome, err := s.accounts.EnsureAccount(ctx, req.CustomerID, core.PlanType(req.PlanType), dailyCap)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"customer_id": req.CustomerID,
		"plan_type":   req.PlanType,
		"outcome":     outcome,
	}).Info("account provisioned")
	return &AccountResult{Account: acct, Outcome: outcome}, nil
}

func (s *appService) GetAccount(ctx context.Context, customerID int64) (*core.CustomerAccount, error) {
	return s.accounts.GetAccount(ctx, customerID)
}

func (s *appService) GetInventory(ctx context.Context, stationID, productID int64) (*core.StationInventory, error) {
	return s.store.GetInventory(ctx, stationID, productID)
}

func (s *appService) GetDelivery(ctx context.Context, transactionID int64) (*core.DeliveryTransaction, error) {
	return s.store.GetDelivery(ctx, transactionID)
}

func (s *appService) ListAdjustments(ctx context.Context, transactionID int64) (*AdjustmentListResult, error) {
	if _, err := s.store.GetDelivery(ctx, transactionID); err != nil {
		return nil, err
	}
	adjustments, err := s.store.ListAdjustments(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments for transaction %d: %w", transactionID, err)
	}
	if adjustments == nil {
		adjustments = []core.LedgerAdjustment{}
	}
	return &AdjustmentListResult{TransactionID: transactionID, Adjustments: adjustments}, nil
}

func (s *appService) ResolvePrice(ctx context.Context, key core.PriceKey) (core.Price, error) {
	return s.prices.ResolvePrice(ctx, key)
}

func (s *appService) InvalidatePrice(ctx context.Context, key core.PriceKey) error {
	inv, ok := s.prices.(core.PriceInvalidator)
	if !ok {
		return nil
	}
	if err := inv.InvalidatePrice(ctx, key); err != nil {
		return err
	}
	s.log.WithField("key", key.String()).Info("cached price invalidated")
	return nil
}

func (s *appService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}
