package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/pricing"
)

type quoter func() (cart.State, pricing.Bill)

// GetCart reloads the cart from the backend and returns it with its bill.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	if _, err := s.Reload(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req, err := decodeAddItem(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := s.Cart.AddItem(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

// UpdateItem sets a line's quantity. Zero or less removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	quantity, err := decodeQuantity(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	id := strings.TrimSpace(r.PathValue("menuItemId"))
	if _, err := s.Cart.UpdateQuantity(ctx, id, quantity); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	id := strings.TrimSpace(r.PathValue("menuItemId"))
	if _, err := s.Cart.RemoveItem(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	if _, err := s.Cart.ClearCart(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

// ListCoupons returns the coupons applicable to the restaurantId query
// parameter, or to the cart's restaurant.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	coupons := s.Coupons(ctx, r.URL.Query().Get("restaurantId"))
	writeJSON(w, http.StatusOK, encodeCoupons(coupons))
}

// ApplyCoupon validates the code and attaches it to the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	code, err := decodeCouponCode(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := s.ApplyCoupon(ctx, code); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	if _, err := s.Cart.RemoveCoupon(ctx); err != nil {
		writeError(ctx, w, err)
		return
	}
	h.writeQuote(w, s.Bill)
}

func (h *Handler) writeQuote(w http.ResponseWriter, quote quoter) {
	st, bill := quote()
	writeJSON(w, http.StatusOK, encodeQuote(st, bill))
}
