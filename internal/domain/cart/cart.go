// Package cart holds the per-session shopping cart and mediates between the
// remote cart record and the local fallback computation.
package cart

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/domain/menu"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// Addon is a priced extra attached to a cart line.
type Addon struct {
	Name  string
	Price decimal.Decimal
}

// Item is one cart line. The same menu item with a different addon set is a
// different line.
type Item struct {
	MenuItemID   string
	RestaurantID string
	Name         string
	UnitPrice    decimal.Decimal
	IsVeg        bool
	Quantity     int
	Addons       []Addon
}

// State is the cart aggregate. RestaurantID is empty iff Items is empty;
// Discount is zero iff CouponCode is empty.
type State struct {
	Items        []Item
	RestaurantID string
	CouponCode   string
	Discount     decimal.Decimal
	// TotalPrice is the item total before fees, as reported by the backend
	// or recomputed locally.
	TotalPrice decimal.Decimal
	TotalItems int
}

// Empty returns the empty cart.
func Empty() State {
	return State{
		Items:      []Item{},
		Discount:   decimal.Zero,
		TotalPrice: decimal.Zero,
	}
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Items = make([]Item, len(s.Items))
	for i, it := range s.Items {
		it.Addons = slices.Clone(it.Addons)
		out.Items[i] = it
	}
	return out
}

// Lines converts the cart into pricing lines.
func (s State) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(s.Items))
	for i, it := range s.Items {
		addons := make([]decimal.Decimal, len(it.Addons))
		for j, a := range it.Addons {
			addons[j] = a.Price
		}
		lines[i] = pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity, Addons: addons}
	}
	return lines
}

// AddRequest is the input of Store.AddItem.
type AddRequest struct {
	RestaurantID string
	MenuItemID   string
	Quantity     int
	Addons       []Addon
	// ConfirmReplace allows clearing a cart locked to another restaurant.
	ConfirmReplace bool
}

// Backend is the remote cart record. Implementations return errors matching
// the fault kinds; only fault.ErrTransient triggers the local fallback.
type Backend interface {
	Fetch(ctx context.Context) (*State, error)
	Add(ctx context.Context, req AddRequest) (*State, error)
	UpdateQuantity(ctx context.Context, menuItemID string, quantity int) (*State, error)
	Remove(ctx context.Context, menuItemID string) (*State, error)
	Clear(ctx context.Context) error
	RemoveCoupon(ctx context.Context) error
}

// Catalog resolves menu items for the local fallback.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*menu.Item, error)
}

// RestaurantConflictError is returned when an item from another restaurant is
// added without confirmation.
type RestaurantConflictError struct {
	Current   string
	Requested string
}

func (e *RestaurantConflictError) Error() string {
	return fmt.Sprintf("cart holds items from restaurant %s; clear it to add from %s", e.Current, e.Requested)
}

// Is makes the error match fault.ErrConflict.
func (e *RestaurantConflictError) Is(target error) bool {
	return target == fault.ErrConflict
}

// sameAddons compares addon sets by value, ignoring order.
func sameAddons(a, b []Addon) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(addonKeys(a), addonKeys(b))
}

func addonKeys(addons []Addon) []string {
	keys := make([]string, len(addons))
	for i, a := range addons {
		keys[i] = strings.ToLower(strings.TrimSpace(a.Name)) + "\x00" + a.Price.String()
	}
	slices.Sort(keys)
	return keys
}
