// Package menu holds the local copy of restaurant catalog data that the cart
// falls back to when the backend cannot be reached.
package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Item is one orderable dish.
type Item struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	IsVeg        bool
}

// Repository provides read access to the catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Item, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]Item, error)
}

// Writer upserts catalog items. Used by catalog import.
type Writer interface {
	Upsert(ctx context.Context, items []Item) error
}
