package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/fault"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// Orchestrator places orders for one session.
type Orchestrator struct {
	owner   string
	cart    Cart
	placer  Placer
	journal Journal
	cfg     Config
	tracer  trace.Tracer
	lg      *zap.Logger
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator for owner's cart. journal may be
// nil, which disables local orders.
func NewOrchestrator(
	owner string,
	c Cart,
	placer Placer,
	journal Journal,
	cfg Config,
	tracer trace.Tracer,
	lg *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		owner:   owner,
		cart:    c,
		placer:  placer,
		journal: journal,
		cfg:     cfg,
		tracer:  tracer,
		lg:      lg,
		now:     time.Now,
	}
}

// PlaceOrder submits the current cart. Cart mutations wait until placement
// is done. The cart is cleared only after the backend accepted the order, or
// after a local order was recorded when the optimistic fallback is enabled.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req Request) (_ *Order, rerr error) {
	ctx, span := o.tracer.Start(ctx, "checkout.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	req.AddressID = strings.TrimSpace(req.AddressID)
	if req.AddressID == "" {
		return nil, ErrMissingAddress
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentCOD
	}

	var order *Order
	err := o.cart.Checkout(ctx, func(snap cart.State, bill pricing.Bill) error {
		if snap.IsEmpty() {
			return ErrEmptyCart
		}
		if req.CouponCode == "" {
			req.CouponCode = snap.CouponCode
		}
		span.SetAttributes(
			attribute.String("checkout.payment_method", req.PaymentMethod),
			attribute.Int("checkout.items", snap.TotalItems),
		)

		placed, err := o.placer.PlaceOrder(ctx, req)
		if err == nil {
			order = placed
			return nil
		}
		if !o.cfg.OptimisticFallback || o.journal == nil || !fault.IsTransient(err) {
			return errors.Wrap(err, "place order")
		}

		o.lg.Warn("Order placement failed, recording local order",
			zap.String("path", "local_fallback"),
			zap.Error(err),
		)
		local := Order{
			ID:            LocalPrefix + uuid.New().String(),
			Status:        StatusPlaced,
			AddressID:     req.AddressID,
			PaymentMethod: req.PaymentMethod,
			CouponCode:    req.CouponCode,
			Total:         bill.GrandTotal,
			Items:         snap.Items,
			CreatedAt:     o.now().UTC(),
			Local:         true,
		}
		if err := o.journal.Append(ctx, o.owner, local); err != nil {
			return errors.Wrap(err, "record local order")
		}
		order = &local
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("checkout.order_id", order.ID),
		attribute.Bool("checkout.local", order.Local),
	)
	o.lg.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.Bool("local", order.Local),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// History returns backend orders merged with local ones, newest first.
// Orders with a local cancel marker are left out. When the backend is down
// the local orders are still returned.
func (o *Orchestrator) History(ctx context.Context) (_ []Order, rerr error) {
	ctx, span := o.tracer.Start(ctx, "checkout.History")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	remote, err := o.placer.ListOrders(ctx)
	if err != nil {
		if o.journal == nil {
			return nil, errors.Wrap(err, "list orders")
		}
		o.lg.Warn("List orders failed, showing local orders only", zap.Error(err))
		remote = nil
	}
	if o.journal == nil {
		return sortNewest(remote), nil
	}

	local, err := o.journal.List(ctx, o.owner)
	if err != nil {
		return nil, errors.Wrap(err, "list local orders")
	}
	cancelled, err := o.journal.Cancelled(ctx, o.owner)
	if err != nil {
		return nil, errors.Wrap(err, "list cancel markers")
	}

	out := make([]Order, 0, len(remote)+len(local))
	for _, ord := range append(remote, local...) {
		if slices.Contains(cancelled, ord.ID) {
			continue
		}
		out = append(out, ord)
	}
	span.SetAttributes(attribute.Int("checkout.orders", len(out)))
	return sortNewest(out), nil
}

// Cancel cancels an order. Local orders only get a cancel marker.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (_ *Order, rerr error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Cancel", trace.WithAttributes(
		attribute.String("checkout.order_id", id),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(id) == "" {
		return nil, fault.Validation("cancel order", "order id is required")
	}
	if !strings.HasPrefix(id, LocalPrefix) {
		ord, err := o.placer.CancelOrder(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "cancel order")
		}
		return ord, nil
	}

	if o.journal == nil {
		return nil, fault.NotFound("cancel order", "order not found")
	}
	local, err := o.journal.List(ctx, o.owner)
	if err != nil {
		return nil, errors.Wrap(err, "list local orders")
	}
	idx := slices.IndexFunc(local, func(ord Order) bool { return ord.ID == id })
	if idx < 0 {
		return nil, fault.NotFound("cancel order", "order not found")
	}
	if err := o.journal.MarkCancelled(ctx, o.owner, id); err != nil {
		return nil, errors.Wrap(err, "mark order cancelled")
	}
	ord := local[idx]
	ord.Status = StatusCancelled
	return &ord, nil
}

func sortNewest(orders []Order) []Order {
	slices.SortStableFunc(orders, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if orders == nil {
		return []Order{}
	}
	return orders
}
