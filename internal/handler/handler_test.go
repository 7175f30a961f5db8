package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/backend"
	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/coupon"
	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/domain/menu"
	"github.com/xenking/cartd/internal/domain/pricing"
	"github.com/xenking/cartd/internal/session"
	"github.com/xenking/cartd/internal/storage/memory"
	"github.com/xenking/cartd/pkg/httpmiddleware"
)

// --- Mock implementations ---

// mockBackend is a minimal remote cart keyed by menu item id.
type mockBackend struct {
	mu     sync.Mutex
	state  cart.State
	addErr error
}

func (m *mockBackend) Fetch(_ context.Context) (*cart.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state.Clone()
	return &st, nil
}

func (m *mockBackend) Add(_ context.Context, req cart.AddRequest) (*cart.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.state.RestaurantID = req.RestaurantID
	m.state.Items = append(m.state.Items, cart.Item{
		MenuItemID:   req.MenuItemID,
		RestaurantID: req.RestaurantID,
		Name:         req.MenuItemID,
		UnitPrice:    decimal.NewFromInt(100),
		Quantity:     req.Quantity,
		Addons:       req.Addons,
	})
	st := m.state.Clone()
	return &st, nil
}

func (m *mockBackend) UpdateQuantity(_ context.Context, id string, q int) (*cart.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.Items {
		if m.state.Items[i].MenuItemID == id {
			m.state.Items[i].Quantity = q
		}
	}
	st := m.state.Clone()
	return &st, nil
}

func (m *mockBackend) Remove(_ context.Context, id string) (*cart.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.state.Items[:0]
	for _, it := range m.state.Items {
		if it.MenuItemID != id {
			kept = append(kept, it)
		}
	}
	m.state.Items = kept
	if len(kept) == 0 {
		m.state.RestaurantID = ""
	}
	st := m.state.Clone()
	return &st, nil
}

func (m *mockBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cart.Empty()
	return nil
}

func (m *mockBackend) RemoveCoupon(_ context.Context) error { return nil }

type mockCoupons struct{}

func (mockCoupons) Applicable(_ context.Context, restaurantID string) ([]coupon.Coupon, error) {
	return []coupon.Coupon{{
		Code:          "SAVE50",
		Description:   "Flat 50 off at " + restaurantID,
		DiscountKind:  coupon.DiscountFlat,
		Value:         decimal.NewFromInt(50),
		MinOrderValue: decimal.NewFromInt(200),
		IsActive:      true,
	}}, nil
}

func (mockCoupons) Validate(_ context.Context, code string, _ decimal.Decimal) (*coupon.Validation, error) {
	if code != "SAVE50" {
		return &coupon.Validation{Valid: false, Message: "Coupon expired"}, nil
	}
	return &coupon.Validation{Valid: true, Discount: decimal.NewFromInt(50)}, nil
}

type mockPlacer struct {
	err    error
	placed []checkout.Request
}

func (m *mockPlacer) PlaceOrder(_ context.Context, req checkout.Request) (*checkout.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.placed = append(m.placed, req)
	return &checkout.Order{
		ID:            "o-1",
		Status:        checkout.StatusPlaced,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		Total:         decimal.RequireFromString("632.9"),
	}, nil
}

func (m *mockPlacer) ListOrders(_ context.Context) ([]checkout.Order, error) {
	return []checkout.Order{{ID: "o-1", Status: checkout.StatusPlaced}}, nil
}

func (m *mockPlacer) CancelOrder(_ context.Context, id string) (*checkout.Order, error) {
	if id != "o-1" {
		return nil, fault.NotFound("cancel order", "order not found")
	}
	return &checkout.Order{ID: id, Status: checkout.StatusCancelled}, nil
}

type mockCatalog struct{}

func (mockCatalog) GetByID(_ context.Context, _ string) (*menu.Item, error) {
	return nil, menu.ErrNotFound
}

// --- Helpers ---

type testServer struct {
	backend *mockBackend
	placer  *mockPlacer
	reg     *session.Registry
	h       http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	b := &mockBackend{state: cart.Empty()}
	p := &mockPlacer{}
	reg, err := session.NewRegistry(session.Deps{
		Cart:    b,
		Coupons: mockCoupons{},
		Orders:  p,
		Catalog: mockCatalog{},
		Journal: memory.NewJournal(),
		Calc:    pricing.NewCalculator(pricing.DefaultConfig()),
		Tracer:  tracenoop.NewTracerProvider().Tracer("test"),
	}, session.Config{}, metricnoop.NewMeterProvider(), zap.NewNop())
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(reg).Register(mux)
	return &testServer{
		backend: b,
		placer:  p,
		reg:     reg,
		h:       httpmiddleware.Wrap(mux, httpmiddleware.BearerToken()),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]jx.Raw) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	fields := map[string]jx.Raw{}
	if rec.Body.Len() > 0 {
		d := jx.DecodeBytes(rec.Body.Bytes())
		require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
			raw, err := d.Raw()
			fields[key] = append(jx.Raw(nil), raw...)
			return err
		}))
	}
	return rec, fields
}

func field(t *testing.T, raw jx.Raw, path ...string) string {
	t.Helper()
	for _, key := range path {
		var next jx.Raw
		d := jx.DecodeBytes(raw)
		require.NoError(t, d.Obj(func(d *jx.Decoder, k string) error {
			if k != key {
				return d.Skip()
			}
			v, err := d.Raw()
			next = append(jx.Raw(nil), v...)
			return err
		}))
		require.NotNil(t, next, "missing field %q", key)
		raw = next
	}
	s := raw.String()
	return strings.Trim(s, `"`)
}

func addPizza(t *testing.T, s *testServer) {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/api/cart/items",
		`{"restaurantId":"A","menuItemId":"margherita","quantity":2,"addons":[{"name":"Cheese","price":49.5}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// --- Tests ---

func TestGetCart_Empty(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "null", field(t, body["cart"], "restaurantId"))
	assert.Equal(t, "[]", field(t, body["cart"], "items"))
	assert.Equal(t, "0", field(t, body["bill"], "grandTotal"))
}

func TestAddItem(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodPost, "/api/cart/items",
		`{"restaurantId":"A","menuItemId":"margherita","quantity":2,"addons":[{"name":"Cheese","price":"49.5"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "A", field(t, body["cart"], "restaurantId"))
	assert.Equal(t, "2", field(t, body["cart"], "totalItems"))
	// (100 + 49.5) x 2 = 299, delivery 40, platform 5, gst 14.95.
	assert.Equal(t, "299", field(t, body["bill"], "itemTotal"))
	assert.Equal(t, "99", field(t, body["bill"], "addonsTotal"))
	assert.Equal(t, "358.95", field(t, body["bill"], "grandTotal"))
}

func TestAddItem_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"restaurantId":`},
		{"not an object", `[1,2]`},
		{"wrong type", `{"restaurantId":"A","menuItemId":"m","quantity":"two"}`},
		{"missing ids", `{"quantity":1}`},
		{"zero quantity", `{"restaurantId":"A","menuItemId":"m","quantity":0}`},
		{"quantity above cap", `{"restaurantId":"A","menuItemId":"m","quantity":100}`},
		{"quantity overflows int", `{"restaurantId":"A","menuItemId":"m","quantity":99999999999999999999}`},
		{"negative addon price", `{"restaurantId":"A","menuItemId":"m","addons":[{"name":"x","price":-1}]}`},
		{"unnamed addon", `{"restaurantId":"A","menuItemId":"m","addons":[{"price":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec, body := s.do(t, http.MethodPost, "/api/cart/items", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, `"validation"`, body["kind"].String())
			assert.Equal(t, "400", body["code"].String())
		})
	}
}

func TestAddItem_RestaurantConflict(t *testing.T) {
	s := newTestServer(t)
	addPizza(t, s)

	rec, body := s.do(t, http.MethodPost, "/api/cart/items", `{"restaurantId":"B","menuItemId":"biryani"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `"restaurant_conflict"`, body["kind"].String())
	assert.Equal(t, `"A"`, body["currentRestaurantId"].String())
	assert.Equal(t, `"B"`, body["requestedRestaurantId"].String())

	rec, body = s.do(t, http.MethodPost, "/api/cart/items",
		`{"restaurantId":"B","menuItemId":"biryani","confirmReplace":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B", field(t, body["cart"], "restaurantId"))
	assert.Equal(t, "1", field(t, body["cart"], "totalItems"))
}

func TestAddItem_BackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"unauthorized", &fault.Error{Kind: fault.ErrValidation, Op: "add", Msg: "Unauthorized", Err: &backend.StatusError{Code: 401}}, 401, "unauthorized"},
		{"not found", fault.NotFound("add", "menu item not found"), 404, "not_found"},
		{"conflict", fault.New(fault.ErrConflict, "add", "stale cart"), 409, "conflict"},
		// Transient errors fall back to the local catalog, which lacks the item.
		{"transient without catalog item", fault.New(fault.ErrTransient, "add", "down"), 404, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.backend.addErr = tt.err
			rec, body := s.do(t, http.MethodPost, "/api/cart/items", `{"restaurantId":"A","menuItemId":"m"}`)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, `"`+tt.kind+`"`, body["kind"].String())
		})
	}
}

func TestUpdateAndRemoveItem(t *testing.T) {
	s := newTestServer(t)
	addPizza(t, s)

	rec, body := s.do(t, http.MethodPatch, "/api/cart/items/margherita", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", field(t, body["cart"], "totalItems"))

	rec, _ = s.do(t, http.MethodPatch, "/api/cart/items/margherita", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Quantity zero removes the line and releases the restaurant lock.
	rec, body = s.do(t, http.MethodPatch, "/api/cart/items/margherita", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", field(t, body["cart"], "restaurantId"))

	addPizza(t, s)
	rec, body = s.do(t, http.MethodDelete, "/api/cart/items/margherita", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", field(t, body["cart"], "items"))
}

func TestClearCart_Idempotent(t *testing.T) {
	s := newTestServer(t)
	addPizza(t, s)
	for range 2 {
		rec, body := s.do(t, http.MethodDelete, "/api/cart", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0", field(t, body["cart"], "totalItems"))
	}
}

func TestCoupons(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/coupons", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", body["coupons"].String())

	rec, body = s.do(t, http.MethodGet, "/api/coupons?restaurantId=A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["coupons"].String(), `"code":"SAVE50"`)
	assert.Contains(t, body["coupons"].String(), `"expiresAt":null`)

	// Empty cart.
	rec, _ = s.do(t, http.MethodPost, "/api/cart/coupon", `{"code":"SAVE50"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	addPizza(t, s)
	rec, body = s.do(t, http.MethodPost, "/api/cart/coupon", `{"code":"save50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SAVE50", field(t, body["cart"], "couponCode"))
	assert.Equal(t, "308.95", field(t, body["bill"], "grandTotal"))

	rec, body = s.do(t, http.MethodPost, "/api/cart/coupon", `{"code":"OLD"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"Coupon expired"`, body["message"].String())

	rec, body = s.do(t, http.MethodDelete, "/api/cart/coupon", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", field(t, body["cart"], "couponCode"))
	assert.Equal(t, "0", field(t, body["bill"], "discount"))
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t)
	addPizza(t, s)

	rec, body := s.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"upi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"delivery address is required"`, body["message"].String())
	assert.Empty(t, s.placer.placed)

	rec, body = s.do(t, http.MethodPost, "/api/checkout", `{"addressId":"addr-1","paymentMethod":"UPI"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "o-1", field(t, body["order"], "id"))
	assert.Equal(t, "upi", field(t, body["order"], "paymentMethod"))
	assert.Equal(t, "false", field(t, body["order"], "local"))

	rec, body = s.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", field(t, body["cart"], "totalItems"))

	rec, _ = s.do(t, http.MethodPost, "/api/checkout", `{"addressId":"addr-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_BackendDown(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", fault.New(fault.ErrTransient, "place order", "down"), http.StatusBadGateway},
		{"timeout", fault.New(fault.ErrTimeout, "place order", "slow"), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			addPizza(t, s)
			s.placer.err = tt.err

			rec, _ := s.do(t, http.MethodPost, "/api/checkout", `{"addressId":"addr-1"}`)
			assert.Equal(t, tt.status, rec.Code)

			// The cart survives a failed placement.
			_, body := s.do(t, http.MethodGet, "/api/cart", "")
			assert.Equal(t, "2", field(t, body["cart"], "totalItems"))
		})
	}
}

func TestOrders(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["orders"].String(), `"id":"o-1"`)

	rec, body = s.do(t, http.MethodPost, "/api/orders/o-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StatusCancelled, field(t, body["order"], "status"))

	rec, _ = s.do(t, http.MethodPost, "/api/orders/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/orders/LOCAL-unknown/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	addPizza(t, s)
	require.Equal(t, 1, s.reg.Len())

	rec, _ := s.do(t, http.MethodPost, "/api/session/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.reg.Len())
}

func TestAnonymousCaller(t *testing.T) {
	s := newTestServer(t)
	s.backend.state = cart.State{
		RestaurantID: "A",
		Items:        []cart.Item{{MenuItemID: "m", RestaurantID: "A", UnitPrice: decimal.NewFromInt(10), Quantity: 1}},
	}

	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
	assert.Equal(t, 0, s.reg.Len())
}

func TestReadBody_TooLarge(t *testing.T) {
	s := newTestServer(t)
	big := `{"code":"` + strings.Repeat("x", maxRequestBody) + `"}`
	rec, body := s.do(t, http.MethodPost, "/api/cart/coupon", big)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"request body too large"`, body["message"].String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", fault.Validation("op", "bad"), http.StatusBadRequest, "validation"},
		{"coupon rejected", &coupon.RejectedError{Code: "X", Message: "nope"}, http.StatusBadRequest, "validation"},
		{"wrapped not found", errors.Wrap(fault.NotFound("op", "gone"), "outer"), http.StatusNotFound, "not_found"},
		{"restaurant conflict", &cart.RestaurantConflictError{Current: "A", Requested: "B"}, http.StatusConflict, "restaurant_conflict"},
		{"timeout before transient", fault.New(fault.ErrTimeout, "op", "slow"), http.StatusGatewayTimeout, "timeout"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"transient", fault.New(fault.ErrTransient, "op", "down"), http.StatusBadGateway, "unavailable"},
		{"forbidden", &fault.Error{Kind: fault.ErrValidation, Err: &backend.StatusError{Code: 403}}, http.StatusForbidden, "unauthorized"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.status)
			assert.Equal(t, tt.kind, got.kind)
			assert.NotEmpty(t, got.message)
		})
	}
}
