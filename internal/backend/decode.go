package backend

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/coupon"
)

// The backend is loosely typed: ids come as "id" or "_id", references may be
// embedded objects, numbers may be strings, and payloads may be wrapped in
// {"data": ...}. Decoders here default every missing field instead of
// failing.

// unwrap returns the value under "data" when body is an envelope.
func unwrap(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("null"), nil
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return body, nil
	}
	var inner []byte
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "data" {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		inner = append([]byte(nil), raw...)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if inner == nil {
		return body, nil
	}
	return inner, nil
}

// errorMessage extracts "message" or "error" from an error body.
func errorMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}
	var msg string
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error", "msg":
			if d.Next() == jx.String {
				s, err := d.Str()
				if err == nil && msg == "" {
					msg = s
				}
				return err
			}
		}
		return d.Skip()
	})
	return msg
}

func decodeCart(body []byte) (*cart.State, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(data)
	st := cart.Empty()
	if d.Next() == jx.Null {
		return &st, nil
	}

	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items", "cartItems":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeCartItem(d)
				if err != nil {
					return err
				}
				st.Items = append(st.Items, it)
				return nil
			})
		case "restaurantId", "restaurant":
			st.RestaurantID, err = decodeRef(d)
		case "couponCode":
			st.CouponCode, err = decodeString(d)
		case "discount":
			st.Discount, err = decodeDecimal(d)
		case "totalPrice", "total", "itemTotal":
			st.TotalPrice, err = decodeDecimal(d)
		case "totalItems":
			st.TotalItems, err = decodeInt(d)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &st, nil
}

func decodeCartItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "menuItemId":
			it.MenuItemID, err = decodeRef(d)
		case "menuItem":
			if d.Next() != jx.Object {
				it.MenuItemID, err = decodeRef(d)
				return err
			}
			return decodeMenuItem(d, &it)
		case "restaurantId", "restaurant":
			it.RestaurantID, err = decodeRef(d)
		case "name":
			it.Name, err = decodeString(d)
		case "price", "unitPrice":
			it.UnitPrice, err = decodeDecimal(d)
		case "isVeg":
			it.IsVeg, err = decodeBool(d, false)
		case "quantity":
			it.Quantity, err = decodeInt(d)
		case "addons":
			return d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAddon(d)
				if err != nil {
					return err
				}
				it.Addons = append(it.Addons, a)
				return nil
			})
		default:
			return d.Skip()
		}
		return err
	})
	return it, err
}

// decodeMenuItem fills the fields of an embedded menu item. Line-level
// fields decoded elsewhere take precedence only when they come later.
func decodeMenuItem(d *jx.Decoder, it *cart.Item) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			it.MenuItemID, err = decodeString(d)
		case "name":
			it.Name, err = decodeString(d)
		case "price":
			it.UnitPrice, err = decodeDecimal(d)
		case "isVeg":
			it.IsVeg, err = decodeBool(d, false)
		case "restaurantId", "restaurant":
			it.RestaurantID, err = decodeRef(d)
		default:
			return d.Skip()
		}
		return err
	})
}

func decodeAddon(d *jx.Decoder) (cart.Addon, error) {
	a := cart.Addon{Price: decimal.Zero}
	if d.Next() == jx.String {
		name, err := d.Str()
		a.Name = name
		return a, err
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			a.Name, err = decodeString(d)
		case "price":
			a.Price, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		return err
	})
	return a, err
}

func decodeCoupons(body []byte) ([]coupon.Coupon, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(data)
	out := []coupon.Coupon{}
	if d.Next() == jx.Null {
		return out, nil
	}
	if err := d.Arr(func(d *jx.Decoder) error {
		c, err := decodeCoupon(d)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode coupons")
	}
	return out, nil
}

func decodeCoupon(d *jx.Decoder) (coupon.Coupon, error) {
	c := coupon.Coupon{
		Value:         decimal.Zero,
		MinOrderValue: decimal.Zero,
		// Coupons without the flag are active.
		IsActive: true,
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = decodeString(d)
		case "description":
			c.Description, err = decodeString(d)
		case "discountType", "discountKind", "type":
			var kind string
			kind, err = decodeString(d)
			c.DiscountKind = coupon.DiscountKind(strings.ToLower(kind))
		case "discountValue", "value", "discount":
			c.Value, err = decodeDecimal(d)
		case "minOrderValue", "minOrder":
			c.MinOrderValue, err = decodeDecimal(d)
		case "expiresAt", "expiryDate", "validUntil":
			c.ExpiresAt, err = decodeTime(d)
		case "isActive", "active":
			c.IsActive, err = decodeBool(d, true)
		default:
			return d.Skip()
		}
		return err
	})
	return c, err
}

func decodeValidation(body []byte) (*coupon.Validation, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	v := &coupon.Validation{Discount: decimal.Zero}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return v, nil
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "valid", "isValid":
			v.Valid, err = decodeBool(d, false)
		case "discount", "discountAmount":
			v.Discount, err = decodeDecimal(d)
		case "message":
			v.Message, err = decodeString(d)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode coupon validation")
	}
	return v, nil
}

func decodeOrder(body []byte) (*checkout.Order, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return &checkout.Order{Total: decimal.Zero}, nil
	}
	o, err := decodeOrderValue(d)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}

func decodeOrders(body []byte) ([]checkout.Order, error) {
	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	d := jx.DecodeBytes(data)
	out := []checkout.Order{}
	if d.Next() == jx.Null {
		return out, nil
	}
	if err := d.Arr(func(d *jx.Decoder) error {
		o, err := decodeOrderValue(d)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return out, nil
}

func decodeOrderValue(d *jx.Decoder) (checkout.Order, error) {
	o := checkout.Order{Total: decimal.Zero}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "_id", "id":
			o.ID, err = decodeString(d)
		case "status":
			o.Status, err = decodeString(d)
		case "addressId", "address":
			o.AddressID, err = decodeRef(d)
		case "paymentMethod":
			o.PaymentMethod, err = decodeString(d)
		case "couponCode":
			o.CouponCode, err = decodeString(d)
		case "total", "totalAmount", "grandTotal":
			o.Total, err = decodeDecimal(d)
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeCartItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
		return err
	})
	return o, err
}

// decodeRef reads an id that may be a plain value or an embedded object
// with "_id" or "id".
func decodeRef(d *jx.Decoder) (string, error) {
	if d.Next() != jx.Object {
		return decodeString(d)
	}
	var id string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "_id" || key == "id" {
			v, err := decodeString(d)
			if id == "" {
				id = v
			}
			return err
		}
		return d.Skip()
	})
	return id, err
}

func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = strings.TrimSpace(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, d.Skip()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, nil
	}
	return v, nil
}

func decodeInt(d *jx.Decoder) (int, error) {
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	return int(v.IntPart()), nil
}

func decodeBool(d *jx.Decoder, def bool) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return def, err
		}
		b, perr := strconv.ParseBool(s)
		if perr != nil {
			return def, nil
		}
		return b, nil
	case jx.Null:
		return def, d.Null()
	default:
		return def, d.Skip()
	}
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := decodeString(d)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, perr := time.Parse(time.RFC3339Nano, s)
	if perr != nil {
		return time.Time{}, nil
	}
	return t, nil
}
