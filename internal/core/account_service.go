package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ProvisionOutcome tells which branch of an account upsert ran.
type ProvisionOutcome string

const (
	ProvisionCreated ProvisionOutcome = "created"
	ProvisionUpdated ProvisionOutcome = "updated"
)

// AccountPlan is the plan assignment applied by EnsureAccount.
type AccountPlan struct {
	CustomerID int64
	PlanType   PlanType
	DailyCap   decimal.NullDecimal
}

// Validate checks the plan before any row is touched.
func (p AccountPlan) Validate() error {
	if p.CustomerID <= 0 {
		return fmt.Errorf("%w: customer id must be positive, got %d", ErrInvalidPlan, p.CustomerID)
	}
	if !p.PlanType.Valid() {
		return fmt.Errorf("%w: unknown plan type %q", ErrInvalidPlan, p.PlanType)
	}
	if p.PlanType.IsDailyCapped() && !p.DailyCap.Valid {
		return fmt.Errorf("%w: daily-capped plan requires a daily cap", ErrInvalidPlan)
	}
	if p.DailyCap.Valid && p.DailyCap.Decimal.IsNegative() {
		return fmt.Errorf("%w: daily cap cannot be negative, got %s", ErrInvalidPlan, p.DailyCap.Decimal)
	}
	return nil
}

// AccountService provisions customer accounts.
type AccountService interface {
	// EnsureAccount creates the customer's account with zeroed ledgers, or, when one exists,
	// updates only its plan type and daily cap. Safe to call concurrently for one customer.
	EnsureAccount(ctx context.Context, customerID int64, planType PlanType, dailyCap decimal.NullDecimal) (*CustomerAccount, ProvisionOutcome, error)
	GetAccount(ctx context.Context, customerID int64) (*CustomerAccount, error)
}

type accountService struct {
	store Store
}

func NewAccountService(store Store) AccountService {
	return &accountService{store: store}
}

func (s *accountService) EnsureAccount(ctx context.Context, customerID int64, planType PlanType, dailyCap decimal.NullDecimal) (*CustomerAccount, ProvisionOutcome, error) {
	plan := AccountPlan{CustomerID: customerID, PlanType: planType, DailyCap: dailyCap}
	if err := plan.Validate(); err != nil {
		return nil, "", err
	}

	var (
		acct    *CustomerAccount
		outcome ProvisionOutcome
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		acct, outcome, err = tx.UpsertAccount(ctx, plan)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to provision account for customer %d: %w", customerID, err)
	}
	return acct, outcome, nil
}

func (s *accountService) GetAccount(ctx context.Context, customerID int64) (*CustomerAccount, error) {
	return s.store.GetAccount(ctx, customerID)
}
