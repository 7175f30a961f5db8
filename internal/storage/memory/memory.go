// Package memory provides in-process implementations of the catalog and the
// order journal, used when no database or Redis is configured.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/menu"
)

var (
	_ menu.Repository  = (*Catalog)(nil)
	_ menu.Writer      = (*Catalog)(nil)
	_ checkout.Journal = (*Journal)(nil)
)

// Catalog is a map-backed menu catalog.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]menu.Item
}

// NewCatalog returns a Catalog seeded with items.
func NewCatalog(items ...menu.Item) *Catalog {
	c := &Catalog{items: make(map[string]menu.Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

func (c *Catalog) GetByID(_ context.Context, id string) (*menu.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return &it, nil
}

func (c *Catalog) ListByRestaurant(_ context.Context, restaurantID string) ([]menu.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []menu.Item{}
	for _, it := range c.items {
		if it.RestaurantID == restaurantID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b menu.Item) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (c *Catalog) Upsert(_ context.Context, items []menu.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range items {
		c.items[it.ID] = it
	}
	return nil
}

// Journal keeps local orders per owner in memory. Contents are lost on
// restart.
type Journal struct {
	mu        sync.Mutex
	orders    map[string][]checkout.Order
	cancelled map[string][]string
}

// NewJournal returns an empty Journal.
func NewJournal() *Journal {
	return &Journal{
		orders:    make(map[string][]checkout.Order),
		cancelled: make(map[string][]string),
	}
}

func (j *Journal) Append(_ context.Context, owner string, o checkout.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	o.Local = true
	o.Items = slices.Clone(o.Items)
	j.orders[owner] = append(j.orders[owner], o)
	return nil
}

func (j *Journal) List(_ context.Context, owner string) ([]checkout.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return slices.Clone(j.orders[owner]), nil
}

func (j *Journal) MarkCancelled(_ context.Context, owner, orderID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !slices.Contains(j.cancelled[owner], orderID) {
		j.cancelled[owner] = append(j.cancelled[owner], orderID)
	}
	return nil
}

func (j *Journal) Cancelled(_ context.Context, owner string) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return slices.Clone(j.cancelled[owner]), nil
}
