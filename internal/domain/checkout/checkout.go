// Package checkout submits the final cart as an order and keeps the local
// order journal used for demo orders and cancel markers.
package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// LocalPrefix marks ids of orders created without backend acknowledgment.
const LocalPrefix = "LOCAL-"

// Order statuses used for local orders.
const (
	StatusPlaced    = "PLACED"
	StatusCancelled = "CANCELLED"
)

// PaymentCOD is the payment method used when none is selected.
const PaymentCOD = "cod"

var (
	// ErrMissingAddress is returned when no delivery address is selected.
	ErrMissingAddress = fault.Validation("place order", "delivery address is required")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = fault.Validation("place order", "cart is empty")
)

// Request is what gets submitted at checkout.
type Request struct {
	AddressID     string
	PaymentMethod string
	CouponCode    string
}

// Order is a created order reference.
type Order struct {
	ID            string
	Status        string
	AddressID     string
	PaymentMethod string
	CouponCode    string
	Total         decimal.Decimal
	Items         []cart.Item
	CreatedAt     time.Time
	// Local is set for orders that exist only in the journal.
	Local bool
}

// Placer is the remote order collaborator.
type Placer interface {
	PlaceOrder(ctx context.Context, req Request) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	CancelOrder(ctx context.Context, id string) (*Order, error)
}

// Journal stores local orders and cancel markers per owner.
type Journal interface {
	Append(ctx context.Context, owner string, o Order) error
	List(ctx context.Context, owner string) ([]Order, error)
	MarkCancelled(ctx context.Context, owner, orderID string) error
	Cancelled(ctx context.Context, owner string) ([]string, error)
}

// Cart is the part of the cart store checkout needs. Checkout runs place
// with the cart held against concurrent mutations and empties it when place
// returns nil.
type Cart interface {
	Checkout(ctx context.Context, place func(cart.State, pricing.Bill) error) error
}

// Config holds checkout product switches.
type Config struct {
	// OptimisticFallback creates a local order and clears the cart when the
	// backend is unreachable. Off by default: a failed placement keeps the
	// cart and returns the error.
	OptimisticFallback bool
}
