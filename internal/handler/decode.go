package handler

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/fault"
)

func invalidBody(op string, err error) error {
	return &fault.Error{Kind: fault.ErrValidation, Op: op, Msg: "invalid request body", Err: err}
}

// decodeObject decodes a JSON object body. An empty body is an empty object.
func decodeObject(op string, data []byte, field func(d *jx.Decoder, key string) error) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return invalidBody(op, errors.New("expected object"))
	}
	if err := d.Obj(field); err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return err
		}
		return invalidBody(op, err)
	}
	return nil
}

func decodeAddItem(data []byte) (cart.AddRequest, error) {
	const op = "decode add item"
	req := cart.AddRequest{Quantity: 1}
	err := decodeObject(op, data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "restaurantId":
			req.RestaurantID, err = d.Str()
		case "menuItemId":
			req.MenuItemID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "confirmReplace":
			req.ConfirmReplace, err = d.Bool()
		case "addons":
			req.Addons, err = decodeAddons(op, d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return cart.AddRequest{}, err
	}
	req.RestaurantID = strings.TrimSpace(req.RestaurantID)
	req.MenuItemID = strings.TrimSpace(req.MenuItemID)
	return req, nil
}

func decodeAddons(op string, d *jx.Decoder) ([]cart.Addon, error) {
	var addons []cart.Addon
	err := d.Arr(func(d *jx.Decoder) error {
		var a cart.Addon
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "name":
				s, err := d.Str()
				a.Name = strings.TrimSpace(s)
				return err
			case "price":
				p, err := decodePrice(op, d)
				a.Price = p
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if a.Name == "" {
			return fault.Validation(op, "addon name is required")
		}
		addons = append(addons, a)
		return nil
	})
	return addons, err
}

// decodePrice accepts a JSON number or a numeric string.
func decodePrice(op string, d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = strings.TrimSpace(s)
	default:
		return decimal.Zero, fault.Validation(op, "price must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fault.Validation(op, "price must be a number")
	}
	if v.IsNegative() {
		return decimal.Zero, fault.Validation(op, "price must not be negative")
	}
	return v, nil
}

func decodeQuantity(data []byte) (int, error) {
	const op = "decode update quantity"
	var (
		quantity int
		seen     bool
	)
	err := decodeObject(op, data, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		return 0, err
	}
	if !seen {
		return 0, fault.Validation(op, "quantity is required")
	}
	return quantity, nil
}

func decodeCouponCode(data []byte) (string, error) {
	const op = "decode coupon"
	var code string
	err := decodeObject(op, data, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	return code, err
}

func decodeCheckout(data []byte) (checkout.Request, error) {
	const op = "decode checkout"
	var req checkout.Request
	err := decodeObject(op, data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "addressId":
			req.AddressID, err = d.Str()
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		case "couponCode":
			req.CouponCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return checkout.Request{}, err
	}
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.CouponCode = strings.ToUpper(strings.TrimSpace(req.CouponCode))
	return req, nil
}
