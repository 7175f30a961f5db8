// Package handler exposes the cart, coupon and checkout operations of a
// caller's session as a JSON HTTP API.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/cartd/internal/backend"
	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/session"
	"github.com/xenking/cartd/pkg/httpmiddleware"
)

const maxRequestBody = 1 << 20

// Sessions resolves callers to their sessions.
type Sessions interface {
	Get(ctx context.Context, token string) *session.Session
	Logout(ctx context.Context, token string) bool
}

// Handler serves the /api routes.
type Handler struct {
	sessions Sessions
}

// New creates a Handler.
func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PATCH /api/cart/items/{menuItemId}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/cart/items/{menuItemId}", h.RemoveItem)
	mux.HandleFunc("POST /api/cart/coupon", h.ApplyCoupon)
	mux.HandleFunc("DELETE /api/cart/coupon", h.RemoveCoupon)
	mux.HandleFunc("GET /api/coupons", h.ListCoupons)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/session/logout", h.Logout)
}

// session returns the caller's session and a context that forwards the
// caller's token to the backend.
func (h *Handler) session(r *http.Request) (context.Context, *session.Session) {
	token := httpmiddleware.TokenFromContext(r.Context())
	ctx := backend.WithToken(r.Context(), token)
	return ctx, h.sessions.Get(ctx, token)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fault.Validation("read request", "request body too large")
		}
		return nil, errors.Wrap(err, "read request")
	}
	return data, nil
}
