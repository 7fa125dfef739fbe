package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidRequest wraps struct validation failures of adapter input.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New()

// ReconcileDeliveryRequest is the input for reconciling one delivery edit.
type ReconcileDeliveryRequest struct {
	TransactionID     int64            `validate:"required,gt=0"`
	FulfilledQuantity decimal.Decimal  // must not be negative
	RequestedQuantity *decimal.Decimal // optional
	Remarks           *string          `validate:"omitempty,max=500"`
}

// EnsureAccountRequest is the input for provisioning a customer account.
type EnsureAccountRequest struct {
	CustomerID int64            `validate:"required,gt=0"`
	PlanType   string           `validate:"required,oneof=prepaid postpaid daily_capped"`
	DailyCap   *decimal.Decimal // required for daily_capped
}

// validateStruct runs tag validation and flattens failures into one ErrInvalidRequest.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}
