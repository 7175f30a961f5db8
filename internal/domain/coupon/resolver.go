package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/fault"
)

// Resolver filters the coupon catalog and validates codes against it.
type Resolver struct {
	catalog Catalog
	lg      *zap.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver backed by catalog.
func NewResolver(catalog Catalog, lg *zap.Logger) *Resolver {
	return &Resolver{catalog: catalog, lg: lg, now: time.Now}
}

// ListApplicable returns the active, unexpired coupons for a restaurant.
// The list is supplementary, so failures are logged and yield an empty list.
func (r *Resolver) ListApplicable(ctx context.Context, restaurantID string) []Coupon {
	all, err := r.catalog.Applicable(ctx, restaurantID)
	if err != nil {
		r.lg.Warn("List applicable coupons",
			zap.String("restaurant_id", restaurantID),
			zap.Error(err),
		)
		return []Coupon{}
	}

	now := r.now()
	out := make([]Coupon, 0, len(all))
	for _, c := range all {
		if !c.IsActive {
			continue
		}
		if !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Validate asks the backend whether code applies to orderValue. The returned
// discount is the backend's, never recomputed locally.
func (r *Resolver) Validate(ctx context.Context, code string, orderValue decimal.Decimal) (*Validation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fault.Validation("validate coupon", "coupon code is required")
	}

	v, err := r.catalog.Validate(ctx, code, orderValue)
	if err != nil {
		return nil, errors.Wrapf(err, "validate coupon %s", code)
	}
	if v.Discount.IsNegative() {
		v.Discount = decimal.Zero
	}
	return v, nil
}

// Resolve validates code and returns the normalized code with its discount,
// or a *RejectedError when the backend declined it.
func (r *Resolver) Resolve(ctx context.Context, code string, orderValue decimal.Decimal) (string, decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	v, err := r.Validate(ctx, code, orderValue)
	if err != nil {
		return "", decimal.Zero, err
	}
	if !v.Valid {
		return "", decimal.Zero, &RejectedError{Code: code, Message: v.Message}
	}
	return code, v.Discount, nil
}
