package redis

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
)

func encodeOrder(o checkout.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(o.Status)
	e.FieldStart("addressId")
	e.Str(o.AddressID)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("couponCode")
	e.Str(o.CouponCode)
	e.FieldStart("total")
	e.Str(o.Total.String())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(it.MenuItemID)
		e.FieldStart("restaurantId")
		e.Str(it.RestaurantID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("unitPrice")
		e.Str(it.UnitPrice.String())
		e.FieldStart("isVeg")
		e.Bool(it.IsVeg)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("addons")
		e.ArrStart()
		for _, a := range it.Addons {
			e.ObjStart()
			e.FieldStart("name")
			e.Str(a.Name)
			e.FieldStart("price")
			e.Str(a.Price.String())
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(data []byte) (checkout.Order, error) {
	o := checkout.Order{Total: decimal.Zero, Local: true}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "status":
			o.Status, err = d.Str()
		case "addressId":
			o.AddressID, err = d.Str()
		case "paymentMethod":
			o.PaymentMethod, err = d.Str()
		case "couponCode":
			o.CouponCode, err = d.Str()
		case "total":
			o.Total, err = decodeDecimal(d)
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				o.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				o.Items = append(o.Items, it)
				return err
			})
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return checkout.Order{}, errors.Wrap(err, "decode journal order")
	}
	return o, nil
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "menuItemId":
			it.MenuItemID, err = d.Str()
		case "restaurantId":
			it.RestaurantID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "unitPrice":
			it.UnitPrice, err = decodeDecimal(d)
		case "isVeg":
			it.IsVeg, err = d.Bool()
		case "quantity":
			it.Quantity, err = d.Int()
		case "addons":
			return d.Arr(func(d *jx.Decoder) error {
				var a cart.Addon
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "name":
						a.Name, err = d.Str()
					case "price":
						a.Price, err = decodeDecimal(d)
					default:
						return d.Skip()
					}
					return err
				})
				it.Addons = append(it.Addons, a)
				return err
			})
		default:
			return d.Skip()
		}
		return err
	})
	return it, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
