package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/cartd/pkg/httpmiddleware"
)

// Checkout places an order for the current cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req, err := decodeCheckout(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	order, err := s.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, *order)
		e.ObjEnd()
	})
}

// ListOrders returns the caller's order history, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	orders, err := s.Checkout.History(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrders(orders))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, s := h.session(r)
	order, err := s.Checkout.Cancel(ctx, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, *order)
		e.ObjEnd()
	})
}

// Logout drops the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := httpmiddleware.TokenFromContext(r.Context())
	h.sessions.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
