package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/domain/coupon"
	"github.com/xenking/cartd/internal/domain/pricing"
)

// Deps are the shared collaborators every session is built from.
type Deps struct {
	Cart    cart.Backend
	Coupons coupon.Catalog
	Orders  checkout.Placer
	Catalog cart.Catalog
	// Journal may be nil, which disables local orders.
	Journal checkout.Journal
	Calc    *pricing.Calculator

	Checkout checkout.Config
	Tracer   trace.Tracer
	Metrics  *cart.Metrics
}

// Config controls session lifetime.
type Config struct {
	// IdleTTL drops sessions not used for this long. Zero disables expiry.
	IdleTTL time.Duration
}

// Registry maps caller tokens to sessions.
type Registry struct {
	deps    Deps
	cfg     Config
	lg      *zap.Logger
	coupons *coupon.Resolver
	now     func() time.Time

	active  metric.Int64UpDownCounter
	expired metric.Int64Counter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(deps Deps, cfg Config, mp metric.MeterProvider, lg *zap.Logger) (*Registry, error) {
	meter := mp.Meter("github.com/xenking/cartd/internal/session")
	active, err := meter.Int64UpDownCounter("cartd.sessions.active",
		metric.WithDescription("Sessions currently held in memory"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "active sessions counter")
	}
	expired, err := meter.Int64Counter("cartd.sessions.expired",
		metric.WithDescription("Sessions dropped after being idle"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "expired sessions counter")
	}

	return &Registry{
		deps:     deps,
		cfg:      cfg,
		lg:       lg,
		coupons:  coupon.NewResolver(deps.Coupons, lg.Named("coupon")),
		now:      time.Now,
		active:   active,
		expired:  expired,
		sessions: make(map[string]*Session),
	}, nil
}

// OwnerID derives the session owner from a bearer token.
func OwnerID(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Get returns the caller's session, creating and loading it from the
// backend on first use. Callers without a token get a fresh anonymous
// session that is never stored.
func (r *Registry) Get(ctx context.Context, token string) *Session {
	owner := OwnerID(token)
	if owner == "" {
		s := r.newSession("", cart.Anonymous())
		s.load.Do(func() {})
		return s
	}

	r.mu.Lock()
	s, ok := r.sessions[owner]
	if !ok {
		s = r.newSession(owner)
		r.sessions[owner] = s
		r.active.Add(ctx, 1)
	}
	s.touch(r.now())
	r.mu.Unlock()

	s.load.Do(func() {
		if _, err := s.Cart.Refresh(ctx); err != nil {
			r.lg.Warn("Initial cart load", zap.String("owner", owner), zap.Error(err))
			return
		}
		s.fresh.Store(true)
	})
	return s
}

// Logout drops the caller's session and resets its cart. It reports
// whether a session existed.
func (r *Registry) Logout(ctx context.Context, token string) bool {
	owner := OwnerID(token)
	r.mu.Lock()
	s, ok := r.sessions[owner]
	delete(r.sessions, owner)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Cart.Reset(ctx)
	r.active.Add(ctx, -1)
	r.lg.Debug("Session closed", zap.String("owner", owner))
	return true
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than IdleTTL and returns how many
// were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var stale []*Session
	for owner, s := range r.sessions {
		if s.idleSince(now) > r.cfg.IdleTTL {
			stale = append(stale, s)
			delete(r.sessions, owner)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Cart.Reset(ctx)
	}
	if n := int64(len(stale)); n > 0 {
		r.active.Add(ctx, -n)
		r.expired.Add(ctx, n)
		r.lg.Info("Expired idle sessions", zap.Int64("count", n))
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if r.cfg.IdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Registry) newSession(owner string, opts ...cart.Option) *Session {
	lg := r.lg
	if owner != "" {
		lg = lg.With(zap.String("owner", owner))
	}
	if r.deps.Metrics != nil {
		opts = append(opts, cart.WithMetrics(r.deps.Metrics))
	}

	store := cart.NewStore(r.deps.Cart, r.deps.Catalog, r.deps.Calc, lg.Named("cart"), opts...)
	journal := r.deps.Journal
	if owner == "" {
		journal = nil
	}
	s := &Session{
		Owner: owner,
		Cart:  store,
		Checkout: checkout.NewOrchestrator(
			owner, store, r.deps.Orders, journal, r.deps.Checkout, r.deps.Tracer, lg.Named("checkout"),
		),
		coupons: r.coupons,
	}
	s.touch(r.now())
	return s
}
