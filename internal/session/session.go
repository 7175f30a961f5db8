// Package session owns the per-user cart and checkout state. Each
// authenticated caller gets exactly one Session, created on first use and
// dropped on logout or after it was idle for too long.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/coupon"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// Session bundles the components serving one user.
type Session struct {
	// Owner is a stable pseudonymous id derived from the caller's token.
	Owner    string
	Cart     *cart.Store
	Checkout *checkout.Orchestrator

	coupons *coupon.Resolver

	load sync.Once
	// fresh is set by the initial load and consumed by the first Reload.
	fresh    atomic.Bool
	lastSeen atomic.Int64
}

// Anonymous reports whether the session belongs to a caller without a token.
func (s *Session) Anonymous() bool {
	return s.Owner == ""
}

// Bill returns the current cart with its bill.
func (s *Session) Bill() (cart.State, pricing.Bill) {
	return s.Cart.Quote()
}

// Reload refreshes the cart from the backend. Right after the initial load
// the loaded cart is returned without a second fetch.
func (s *Session) Reload(ctx context.Context) (cart.State, error) {
	if s.fresh.CompareAndSwap(true, false) {
		return s.Cart.Snapshot(), nil
	}
	return s.Cart.Refresh(ctx)
}

// Coupons lists applicable coupons for restaurantID, or for the cart's
// restaurant when restaurantID is empty. With neither the list is empty.
func (s *Session) Coupons(ctx context.Context, restaurantID string) []coupon.Coupon {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		restaurantID = s.Cart.Snapshot().RestaurantID
	}
	if restaurantID == "" {
		return []coupon.Coupon{}
	}
	return s.coupons.ListApplicable(ctx, restaurantID)
}

// ApplyCoupon validates code against the cart's item total and attaches it,
// replacing any active coupon. A rejected code leaves the cart unchanged.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (cart.State, error) {
	return s.Cart.ApplyCoupon(ctx, func(ctx context.Context, itemTotal decimal.Decimal) (string, decimal.Decimal, error) {
		return s.coupons.Resolve(ctx, code, itemTotal)
	})
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}
