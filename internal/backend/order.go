package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/jx"

	"github.com/xenking/cartd/internal/domain/checkout"
)

var _ checkout.Placer = (*Client)(nil)

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Order, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("addressId")
	e.Str(req.AddressID)
	e.FieldStart("paymentMethod")
	e.Str(req.PaymentMethod)
	if req.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(req.CouponCode)
	}
	e.ObjEnd()

	data, err := c.do(ctx, "place order", http.MethodPost, "/orders", e.Bytes())
	if err != nil {
		return nil, err
	}
	o, err := decodeOrder(data)
	if err != nil {
		return nil, err
	}
	if o.AddressID == "" {
		o.AddressID = req.AddressID
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = req.PaymentMethod
	}
	return o, nil
}

// ListOrders returns the caller's orders.
func (c *Client) ListOrders(ctx context.Context) ([]checkout.Order, error) {
	data, err := c.get(ctx, "list orders", "/orders")
	if err != nil {
		return nil, err
	}
	return decodeOrders(data)
}

// CancelOrder cancels an order.
func (c *Client) CancelOrder(ctx context.Context, id string) (*checkout.Order, error) {
	data, err := c.do(ctx, "cancel order", http.MethodPatch, "/orders/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	o, err := decodeOrder(data)
	if err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = id
	}
	if o.Status == "" {
		o.Status = checkout.StatusCancelled
	}
	return o, nil
}
