package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/fault"
)

// DiscountKind enumerates how the backend computes a coupon's discount. The
// engine only displays it; the amount always comes from validation.
type DiscountKind string

const (
	// DiscountPercentage takes a percentage of the order value.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFlat takes a fixed amount off.
	DiscountFlat DiscountKind = "flat"
)

// Coupon is a read-only candidate from the backend catalog.
type Coupon struct {
	Code          string
	Description   string
	DiscountKind  DiscountKind
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	// ExpiresAt is zero for coupons that never expire.
	ExpiresAt time.Time
	IsActive  bool
}

// Validation is the backend's verdict on a code for an order value.
type Validation struct {
	Valid    bool
	Discount decimal.Decimal
	Message  string
}

// Catalog is the remote coupon collaborator.
type Catalog interface {
	Applicable(ctx context.Context, restaurantID string) ([]Coupon, error)
	Validate(ctx context.Context, code string, orderValue decimal.Decimal) (*Validation, error)
}

// RejectedError is returned when the backend declines a coupon.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coupon %s is not applicable", e.Code)
	}
	return e.Message
}

// Is makes a rejection match fault.ErrValidation.
func (e *RejectedError) Is(target error) bool {
	return target == fault.ErrValidation
}
