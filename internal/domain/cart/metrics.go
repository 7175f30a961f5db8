package cart

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts cart mutations and local fallbacks.
type Metrics struct {
	mutations metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewMetrics registers the cart instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/xenking/cartd/internal/domain/cart")

	mutations, err := meter.Int64Counter("cartd.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mutations counter")
	}
	fallbacks, err := meter.Int64Counter("cartd.cart.fallbacks",
		metric.WithDescription("Cart mutations served by the local fallback"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "fallbacks counter")
	}

	return &Metrics{mutations: mutations, fallbacks: fallbacks}, nil
}

func (m *Metrics) mutation(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) fallback(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
