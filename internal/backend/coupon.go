package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/coupon"
)

var _ coupon.Catalog = (*Client)(nil)

// Applicable lists coupons offered for a restaurant.
func (c *Client) Applicable(ctx context.Context, restaurantID string) ([]coupon.Coupon, error) {
	data, err := c.get(ctx, "list coupons", "/coupons/applicable/"+url.PathEscape(restaurantID))
	if err != nil {
		return nil, err
	}
	return decodeCoupons(data)
}

// Validate asks the backend whether code applies to orderValue.
func (c *Client) Validate(ctx context.Context, code string, orderValue decimal.Decimal) (*coupon.Validation, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("orderValue")
	e.Raw([]byte(orderValue.String()))
	e.ObjEnd()

	data, err := c.do(ctx, "validate coupon", http.MethodPost, "/coupons/validate", e.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeValidation(data)
}
