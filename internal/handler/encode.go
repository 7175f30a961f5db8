package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/coupon"
	"github.com/xenking/cartd/internal/domain/pricing"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

// encodeQuote writes {"cart": ..., "bill": ...}.
func encodeQuote(st cart.State, bill pricing.Bill) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("cart")
		encodeCart(e, st)
		e.FieldStart("bill")
		encodeBill(e, bill)
		e.ObjEnd()
	}
}

func encodeCart(e *jx.Encoder, st cart.State) {
	e.ObjStart()
	e.FieldStart("restaurantId")
	if st.RestaurantID == "" {
		e.Null()
	} else {
		e.Str(st.RestaurantID)
	}
	e.FieldStart("items")
	encodeItems(e, st.Items)
	e.FieldStart("couponCode")
	if st.CouponCode == "" {
		e.Null()
	} else {
		e.Str(st.CouponCode)
	}
	e.FieldStart("discount")
	encodeDecimal(e, st.Discount)
	e.FieldStart("totalPrice")
	encodeDecimal(e, st.TotalPrice)
	e.FieldStart("totalItems")
	e.Int(st.TotalItems)
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []cart.Item) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(it.MenuItemID)
		e.FieldStart("restaurantId")
		e.Str(it.RestaurantID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("unitPrice")
		encodeDecimal(e, it.UnitPrice)
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
			encodeDecimal(e, a.Price)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeBill(e *jx.Encoder, b pricing.Bill) {
	e.ObjStart()
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"itemTotal", b.ItemTotal},
		{"addonsTotal", b.AddonsTotal},
		{"deliveryFee", b.DeliveryFee},
		{"platformFee", b.PlatformFee},
		{"gst", b.GST},
		{"discount", b.Discount},
		{"grandTotal", b.GrandTotal},
	} {
		e.FieldStart(f.name)
		encodeDecimal(e, f.value)
	}
	e.ObjEnd()
}

func encodeCoupons(coupons []coupon.Coupon) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupons")
		e.ArrStart()
		for _, c := range coupons {
			e.ObjStart()
			e.FieldStart("code")
			e.Str(c.Code)
			e.FieldStart("description")
			e.Str(c.Description)
			e.FieldStart("discountType")
			e.Str(string(c.DiscountKind))
			e.FieldStart("value")
			encodeDecimal(e, c.Value)
			e.FieldStart("minOrderValue")
			encodeDecimal(e, c.MinOrderValue)
			e.FieldStart("expiresAt")
			encodeTime(e, c.ExpiresAt)
			e.FieldStart("isActive")
			e.Bool(c.IsActive)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
}

func encodeOrder(e *jx.Encoder, o checkout.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(o.Status)
	e.FieldStart("addressId")
	e.Str(o.AddressID)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("items")
	encodeItems(e, o.Items)
	e.FieldStart("local")
	e.Bool(o.Local)
	e.ObjEnd()
}

func encodeOrders(orders []checkout.Order) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for _, o := range orders {
			encodeOrder(e, o)
		}
		e.ArrEnd()
		e.ObjEnd()
	}
}
