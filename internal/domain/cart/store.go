package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/domain/menu"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// MaxQuantity is the largest quantity a single line may hold.
const MaxQuantity = 99

// Option configures a Store.
type Option func(*Store)

// WithMetrics records mutations and fallbacks on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Anonymous marks the store as belonging to an unauthenticated caller.
// Refresh then always yields the empty cart.
func Anonymous() Option {
	return func(s *Store) { s.anonymous = true }
}

// Store owns one session's cart. Mutations are serialized in issuance order;
// a mutation holds the queue for its whole backend round trip.
type Store struct {
	backend Backend
	catalog Catalog
	calc    *pricing.Calculator
	lg      *zap.Logger
	metrics *Metrics

	anonymous bool

	// queue admits one mutation at a time. Blocked senders are woken in
	// arrival order.
	queue chan struct{}

	mu    sync.Mutex
	state State
}

// NewStore creates an empty Store.
func NewStore(backend Backend, catalog Catalog, calc *pricing.Calculator, lg *zap.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		catalog: catalog,
		calc:    calc,
		lg:      lg,
		queue:   make(chan struct{}, 1),
		state:   Empty(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Quote returns the current state with its bill.
func (s *Store) Quote() (State, pricing.Bill) {
	st := s.Snapshot()
	return st, s.calc.ComputeBill(st.Lines(), st.Discount)
}

// Refresh reloads the cart from the backend. Anonymous callers and backend
// failures both yield the empty cart; failures are only logged.
func (s *Store) Refresh(ctx context.Context) (State, error) {
	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	if s.anonymous {
		return s.set(Empty()), nil
	}

	remote, err := s.backend.Fetch(ctx)
	if err != nil {
		s.lg.Error("Fetch cart failed, resetting to empty", zap.Error(err))
		s.metrics.mutation(ctx, "refresh", err)
		return s.set(Empty()), nil
	}
	s.metrics.mutation(ctx, "refresh", nil)
	return s.set(s.adopt(*remote)), nil
}

// AddItem adds quantity of a menu item. A cart locked to another restaurant
// is only replaced when req.ConfirmReplace is set.
func (s *Store) AddItem(ctx context.Context, req AddRequest) (State, error) {
	const op = "add item"
	if req.Quantity < 1 {
		return State{}, fault.Validation(op, "quantity must be at least 1")
	}
	if req.Quantity > MaxQuantity {
		return State{}, errTooMany(op)
	}
	if req.MenuItemID == "" || req.RestaurantID == "" {
		return State{}, fault.Validation(op, "restaurant and menu item are required")
	}

	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	cur := s.current()
	if !cur.IsEmpty() && cur.RestaurantID != req.RestaurantID {
		if !req.ConfirmReplace {
			return cur, &RestaurantConflictError{Current: cur.RestaurantID, Requested: req.RestaurantID}
		}
		if err := s.backend.Clear(ctx); err != nil {
			s.lg.Warn("Clear remote cart before restaurant switch", zap.Error(err))
		}
		s.lg.Info("Cart replaced for restaurant switch",
			zap.String("from", cur.RestaurantID),
			zap.String("to", req.RestaurantID),
		)
		cur = s.set(Empty())
	}

	remote, err := s.backend.Add(ctx, req)
	if err == nil {
		s.metrics.mutation(ctx, "add", nil)
		return s.set(s.adopt(*remote)), nil
	}
	if !fault.IsTransient(err) {
		s.metrics.mutation(ctx, "add", err)
		return cur, errors.Wrap(err, op)
	}

	s.fellBack(ctx, "add", err)
	next, lerr := s.localAdd(ctx, cur, req)
	if lerr != nil {
		s.metrics.mutation(ctx, "add", lerr)
		return cur, lerr
	}
	s.metrics.mutation(ctx, "add", nil)
	return s.set(next), nil
}

// UpdateQuantity sets the quantity of a line. A non-positive quantity removes
// the line.
func (s *Store) UpdateQuantity(ctx context.Context, menuItemID string, quantity int) (State, error) {
	const op = "update quantity"
	if menuItemID == "" {
		return State{}, fault.Validation(op, "menu item is required")
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, menuItemID)
	}
	if quantity > MaxQuantity {
		return State{}, errTooMany(op)
	}

	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	cur := s.current()
	remote, err := s.backend.UpdateQuantity(ctx, menuItemID, quantity)
	if err == nil {
		s.metrics.mutation(ctx, "update", nil)
		return s.set(s.adopt(*remote)), nil
	}
	if !fault.IsTransient(err) {
		s.metrics.mutation(ctx, "update", err)
		return cur, errors.Wrap(err, op)
	}

	s.fellBack(ctx, "update", err)
	next := cur.Clone()
	idx := -1
	for i, it := range next.Items {
		if it.MenuItemID == menuItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		nerr := fault.NotFound(op, "item is not in the cart")
		s.metrics.mutation(ctx, "update", nerr)
		return cur, nerr
	}
	next.Items[idx].Quantity = quantity
	s.metrics.mutation(ctx, "update", nil)
	return s.set(s.recompute(next)), nil
}

// RemoveItem drops every line of a menu item. Removing the last line
// releases the restaurant lock.
func (s *Store) RemoveItem(ctx context.Context, menuItemID string) (State, error) {
	const op = "remove item"
	if menuItemID == "" {
		return State{}, fault.Validation(op, "menu item is required")
	}

	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	cur := s.current()
	remote, err := s.backend.Remove(ctx, menuItemID)
	if err == nil {
		s.metrics.mutation(ctx, "remove", nil)
		return s.set(s.adopt(*remote)), nil
	}
	if !fault.IsTransient(err) {
		s.metrics.mutation(ctx, "remove", err)
		return cur, errors.Wrap(err, op)
	}

	s.fellBack(ctx, "remove", err)
	next := cur.Clone()
	kept := next.Items[:0]
	for _, it := range next.Items {
		if it.MenuItemID != menuItemID {
			kept = append(kept, it)
		}
	}
	next.Items = kept
	s.metrics.mutation(ctx, "remove", nil)
	return s.set(s.recompute(next)), nil
}

// ClearCart empties the cart. The backend clear is best effort; the local
// cart is always emptied.
func (s *Store) ClearCart(ctx context.Context) (State, error) {
	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	if err := s.backend.Clear(ctx); err != nil {
		s.lg.Warn("Clear remote cart failed, clearing locally", zap.Error(err))
	}
	s.metrics.mutation(ctx, "clear", nil)
	return s.set(Empty()), nil
}

// CouponFunc validates a coupon against the cart's item total and returns
// the normalized code with its discount.
type CouponFunc func(ctx context.Context, itemTotal decimal.Decimal) (code string, discount decimal.Decimal, err error)

// ApplyCoupon validates a coupon with validate and attaches it, replacing any
// active one. Validation runs while the queue is held, so the discount always
// matches the item total it was computed for. A rejected coupon leaves the
// cart unchanged.
func (s *Store) ApplyCoupon(ctx context.Context, validate CouponFunc) (State, error) {
	const op = "apply coupon"
	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	next := s.current()
	if next.IsEmpty() {
		return next, fault.Validation(op, "cart is empty")
	}
	bill := s.calc.ComputeBill(next.Lines(), decimal.Zero)
	code, discount, err := validate(ctx, bill.ItemTotal)
	if err != nil {
		s.metrics.mutation(ctx, "apply_coupon", err)
		return next, err
	}
	if code == "" {
		return next, fault.Validation(op, "coupon code is required")
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if prev := next.CouponCode; prev != "" && prev != code {
		s.lg.Debug("Replacing coupon", zap.String("from", prev), zap.String("to", code))
	}
	next.CouponCode = code
	next.Discount = discount
	s.metrics.mutation(ctx, "apply_coupon", nil)
	return s.set(next), nil
}

// RemoveCoupon detaches the active coupon here and on the backend. A backend
// failure is logged; the local coupon is removed regardless.
func (s *Store) RemoveCoupon(ctx context.Context) (State, error) {
	if err := s.acquire(ctx); err != nil {
		return State{}, err
	}
	defer s.release()

	if err := s.backend.RemoveCoupon(ctx); err != nil {
		s.lg.Warn("Remove coupon on backend failed, removing locally", zap.Error(err))
	}
	next := s.current()
	next.CouponCode = ""
	next.Discount = decimal.Zero
	s.metrics.mutation(ctx, "remove_coupon", nil)
	return s.set(next), nil
}

// Checkout runs place against the current cart and its bill while holding
// the queue, so no mutation can land between the snapshot and the clear.
// The cart is emptied only when place succeeds; an empty cart is passed to
// place as is. The backend clear is best effort.
func (s *Store) Checkout(ctx context.Context, place func(State, pricing.Bill) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	st := s.current()
	if err := place(st, s.calc.ComputeBill(st.Lines(), st.Discount)); err != nil {
		return err
	}
	if err := s.backend.Clear(ctx); err != nil {
		s.lg.Warn("Clear remote cart after checkout", zap.Error(err))
	}
	s.metrics.mutation(ctx, "checkout", nil)
	s.set(Empty())
	return nil
}

// Reset empties the cart without contacting the backend. It waits for an
// in-flight mutation to finish so that mutation cannot write its result
// back afterwards. When ctx is done first the cart is emptied anyway.
func (s *Store) Reset(ctx context.Context) {
	if err := s.acquire(ctx); err == nil {
		defer s.release()
	}
	s.set(Empty())
}

func (s *Store) localAdd(ctx context.Context, cur State, req AddRequest) (State, error) {
	const op = "add item"
	mi, err := s.catalog.GetByID(ctx, req.MenuItemID)
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			return cur, fault.NotFound(op, "menu item not found")
		}
		return cur, errors.Wrap(err, "lookup menu item")
	}
	if mi.RestaurantID != "" && mi.RestaurantID != req.RestaurantID {
		return cur, fault.Validation(op, "menu item does not belong to this restaurant")
	}

	next := cur.Clone()
	merged := false
	for i, it := range next.Items {
		if it.MenuItemID == req.MenuItemID && sameAddons(it.Addons, req.Addons) {
			if it.Quantity+req.Quantity > MaxQuantity {
				return cur, errTooMany(op)
			}
			next.Items[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		next.Items = append(next.Items, Item{
			MenuItemID:   mi.ID,
			RestaurantID: req.RestaurantID,
			Name:         mi.Name,
			UnitPrice:    mi.Price,
			IsVeg:        mi.IsVeg,
			Quantity:     req.Quantity,
			Addons:       append([]Addon(nil), req.Addons...),
		})
	}
	next.RestaurantID = req.RestaurantID
	return s.recompute(next), nil
}

// adopt normalizes a backend cart. Backend aggregates win when present; a
// coupon the backend does not report is kept while the cart is non-empty.
func (s *Store) adopt(remote State) State {
	local := s.current()
	next := remote.Clone()

	kept := next.Items[:0]
	for _, it := range next.Items {
		if it.Quantity > 0 {
			kept = append(kept, it)
		}
	}
	next.Items = kept

	if next.CouponCode == "" && local.CouponCode != "" {
		next.CouponCode = local.CouponCode
		next.Discount = local.Discount
	}

	if next.TotalItems == 0 || next.TotalPrice.IsZero() {
		t := s.calc.Totals(next.Lines())
		if next.TotalItems == 0 {
			next.TotalItems = t.Items
		}
		if next.TotalPrice.IsZero() {
			next.TotalPrice = t.Price
		}
	}
	return normalize(next)
}

// recompute refreshes the local aggregates after a fallback mutation.
func (s *Store) recompute(st State) State {
	t := s.calc.Totals(st.Lines())
	st.TotalItems = t.Items
	st.TotalPrice = t.Price
	return normalize(st)
}

// normalize enforces the lock and coupon invariants.
func normalize(st State) State {
	if st.Items == nil {
		st.Items = []Item{}
	}
	if st.IsEmpty() {
		return Empty()
	}
	if st.RestaurantID == "" {
		st.RestaurantID = st.Items[0].RestaurantID
	}
	for i := range st.Items {
		if st.Items[i].RestaurantID == "" {
			st.Items[i].RestaurantID = st.RestaurantID
		}
	}
	if st.CouponCode == "" || st.Discount.IsNegative() {
		st.Discount = decimal.Zero
	}
	return st
}

func errTooMany(op string) error {
	return fault.Validation(op, fmt.Sprintf("quantity must not exceed %d", MaxQuantity))
}

func (s *Store) fellBack(ctx context.Context, op string, cause error) {
	s.lg.Warn("Backend cart call failed, using local fallback",
		zap.String("op", op),
		zap.String("path", "local_fallback"),
		zap.Error(cause),
	)
	s.metrics.fallback(ctx, op)
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.queue <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for cart")
	}
}

func (s *Store) release() {
	<-s.queue
}

func (s *Store) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) set(st State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return st.Clone()
}
