package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cartd/internal/domain/menu"
)

const (
	getMenuItemSQL = `SELECT id, restaurant_id, name, price, is_veg
		FROM menu_items WHERE id = $1`

	listMenuItemsSQL = `SELECT id, restaurant_id, name, price, is_veg
		FROM menu_items WHERE restaurant_id = $1 ORDER BY name, id`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, restaurant_id, name, price, is_veg, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			restaurant_id = EXCLUDED.restaurant_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			is_veg = EXCLUDED.is_veg,
			updated_at = now()`
)

var (
	_ menu.Repository = (*MenuRepository)(nil)
	_ menu.Writer     = (*MenuRepository)(nil)
)

// MenuRepository implements menu.Repository and menu.Writer.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// GetByID returns a menu item by id.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	return &it, nil
}

// ListByRestaurant returns the menu of a restaurant ordered by name.
func (r *MenuRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing menu of %q: %w", restaurantID, err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// Upsert inserts or replaces items in one batch.
func (r *MenuRepository) Upsert(ctx context.Context, items []menu.Item) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(upsertMenuItemSQL, it.ID, it.RestaurantID, it.Name, it.Price, it.IsVeg)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d menu items: %w", len(items), err)
	}
	return nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var it menu.Item
	err := row.Scan(&it.ID, &it.RestaurantID, &it.Name, &it.Price, &it.IsVeg)
	return it, err
}
