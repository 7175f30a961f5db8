// Package pricing computes the bill for a cart. It is the only place where
// item, add-on, fee and tax arithmetic is defined: both the display path and
// the cart's local fallback use it.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Config holds the fee and tax parameters of the bill.
type Config struct {
	// FreeDeliveryThreshold is the item total above which delivery is free.
	FreeDeliveryThreshold decimal.Decimal
	// DeliveryFee is the flat fee charged at or below the threshold.
	DeliveryFee decimal.Decimal
	// PlatformFee is charged on every non-empty cart.
	PlatformFee decimal.Decimal
	// GSTRate is applied to the item total only.
	GSTRate decimal.Decimal
}

// DefaultConfig returns the fees observed in production: free delivery
// above 500, otherwise 40; platform fee 5; GST 5%.
func DefaultConfig() Config {
	return Config{
		FreeDeliveryThreshold: decimal.NewFromInt(500),
		DeliveryFee:           decimal.NewFromInt(40),
		PlatformFee:           decimal.NewFromInt(5),
		GSTRate:               decimal.RequireFromString("0.05"),
	}
}

// Line is the pricing view of one cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Addons    []decimal.Decimal
}

// Bill is the derived breakdown shown to the user.
type Bill struct {
	ItemTotal   decimal.Decimal
	AddonsTotal decimal.Decimal
	DeliveryFee decimal.Decimal
	PlatformFee decimal.Decimal
	GST         decimal.Decimal
	Discount    decimal.Decimal
	GrandTotal  decimal.Decimal
}

// Totals is the aggregate a cart reports when the backend did not.
type Totals struct {
	Items int
	Price decimal.Decimal
}

// Calculator computes bills for a fixed Config.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a Calculator using cfg.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Config returns the parameters in use.
func (c *Calculator) Config() Config {
	return c.cfg
}

// ComputeBill derives the bill for lines with the backend-validated discount.
//
// The discount is clamped to [0, itemTotal], so the grand total never drops
// below fees plus tax. An empty cart yields a zero bill.
func (c *Calculator) ComputeBill(lines []Line, discount decimal.Decimal) Bill {
	itemTotal, addonsTotal, _ := sum(lines)
	if itemTotal.IsZero() {
		return Bill{
			ItemTotal:   decimal.Zero,
			AddonsTotal: decimal.Zero,
			DeliveryFee: decimal.Zero,
			PlatformFee: decimal.Zero,
			GST:         decimal.Zero,
			Discount:    decimal.Zero,
			GrandTotal:  decimal.Zero,
		}
	}

	delivery := nonNegative(c.cfg.DeliveryFee)
	if itemTotal.GreaterThan(c.cfg.FreeDeliveryThreshold) {
		delivery = decimal.Zero
	}
	platform := nonNegative(c.cfg.PlatformFee)
	gst := itemTotal.Mul(nonNegative(c.cfg.GSTRate)).Round(2)

	discount = nonNegative(discount)
	if discount.GreaterThan(itemTotal) {
		discount = itemTotal
	}

	grand := itemTotal.Add(delivery).Add(platform).Add(gst).Sub(discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	return Bill{
		ItemTotal:   itemTotal.Round(2),
		AddonsTotal: addonsTotal.Round(2),
		DeliveryFee: delivery.Round(2),
		PlatformFee: platform.Round(2),
		GST:         gst,
		Discount:    discount.Round(2),
		GrandTotal:  grand.Round(2),
	}
}

// Totals returns the item count and item total of lines.
func (c *Calculator) Totals(lines []Line) Totals {
	itemTotal, _, count := sum(lines)
	return Totals{Items: count, Price: itemTotal.Round(2)}
}

func sum(lines []Line) (itemTotal, addonsTotal decimal.Decimal, count int) {
	itemTotal, addonsTotal = decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(l.Quantity))

		addons := decimal.Zero
		for _, p := range l.Addons {
			addons = addons.Add(nonNegative(p))
		}

		itemTotal = itemTotal.Add(nonNegative(l.UnitPrice).Add(addons).Mul(qty))
		addonsTotal = addonsTotal.Add(addons.Mul(qty))
		count += l.Quantity
	}
	return itemTotal, addonsTotal, count
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
