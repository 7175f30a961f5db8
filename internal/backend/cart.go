package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/jx"

	"github.com/xenking/cartd/internal/domain/cart"
)

var _ cart.Backend = (*Client)(nil)

// Fetch returns the remote cart.
func (c *Client) Fetch(ctx context.Context) (*cart.State, error) {
	data, err := c.get(ctx, "fetch cart", "/cart")
	if err != nil {
		return nil, err
	}
	return decodeCart(data)
}

// Add adds a line to the remote cart.
func (c *Client) Add(ctx context.Context, req cart.AddRequest) (*cart.State, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("restaurantId")
	e.Str(req.RestaurantID)
	e.FieldStart("menuItemId")
	e.Str(req.MenuItemID)
	e.FieldStart("quantity")
	e.Int(req.Quantity)
	e.FieldStart("addons")
	e.ArrStart()
	for _, a := range req.Addons {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(a.Name)
		e.FieldStart("price")
		e.Raw([]byte(a.Price.String()))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	data, err := c.do(ctx, "add to cart", http.MethodPost, "/cart/add", e.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeCart(data)
}

// UpdateQuantity sets the quantity of a remote line.
func (c *Client) UpdateQuantity(ctx context.Context, menuItemID string, quantity int) (*cart.State, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("menuItemId")
	e.Str(menuItemID)
	e.FieldStart("quantity")
	e.Int(quantity)
	e.ObjEnd()

	data, err := c.do(ctx, "update cart", http.MethodPatch, "/cart/update", e.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeCart(data)
}

// Remove deletes a remote line.
func (c *Client) Remove(ctx context.Context, menuItemID string) (*cart.State, error) {
	data, err := c.do(ctx, "remove from cart", http.MethodDelete, "/cart/remove/"+url.PathEscape(menuItemID), nil)
	if err != nil {
		return nil, err
	}
	return decodeCart(data)
}

// Clear empties the remote cart.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, "clear cart", http.MethodDelete, "/cart/clear", nil)
	return err
}

// RemoveCoupon detaches the coupon from the remote cart.
func (c *Client) RemoveCoupon(ctx context.Context) error {
	_, err := c.do(ctx, "remove coupon", http.MethodDelete, "/cart/coupon", nil)
	return err
}
