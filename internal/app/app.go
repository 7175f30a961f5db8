package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cartd/internal/backend"
	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/checkout"
	"github.com/xenking/cartd/internal/handler"
	"github.com/xenking/cartd/internal/session"
	"github.com/xenking/cartd/internal/storage/memory"
	"github.com/xenking/cartd/internal/storage/postgres"
	"github.com/xenking/cartd/internal/storage/redis"
	"github.com/xenking/cartd/pkg/health"
	"github.com/xenking/cartd/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend.URL),
		zap.Bool("optimistic_checkout", cfg.Checkout.OptimisticFallback),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second),
		health.WithFailureThreshold(5),
	)

	calc, err := cfg.Pricing.Calculator()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}

	// Fallback menu catalog: PostgreSQL when configured, memory otherwise.
	var catalog cart.Catalog
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
		catalog = postgres.NewMenuRepository(pool)
	} else {
		lg.Warn("No database configured, local fallback catalog is empty")
		catalog = memory.NewCatalog()
	}

	// Local order journal: Redis when configured, memory otherwise.
	var journal checkout.Journal
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		journal = redis.NewJournal(rdb, cfg.Checkout.JournalTTL)
	} else {
		journal = memory.NewJournal()
	}

	client, err := backend.New(backend.Config{
		BaseURL:        cfg.Backend.URL,
		Timeout:        cfg.Backend.Timeout,
		Retries:        cfg.Backend.Retries,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, lg.Named("backend"))
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}
	healthSvc.AddReadinessCheck("backend", cfg.Backend.Timeout, health.PingCheck(client),
		health.WithFailureThreshold(3),
		health.WithSuccessThreshold(2),
	)

	cartMetrics, err := cart.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "cart metrics")
	}

	registry, err := session.NewRegistry(session.Deps{
		Cart:     client,
		Coupons:  client,
		Orders:   client,
		Catalog:  catalog,
		Journal:  journal,
		Calc:     calc,
		Checkout: checkout.Config{OptimisticFallback: cfg.Checkout.OptimisticFallback},
		Tracer:   m.TracerProvider().Tracer("github.com/xenking/cartd/internal/domain/checkout"),
		Metrics:  cartMetrics,
	}, session.Config{IdleTTL: cfg.Session.IdleTTL}, m.MeterProvider(), lg.Named("session"))
	if err != nil {
		return errors.Wrap(err, "create session registry")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(registry).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Covers the backend round trips of one request, retries included.
		WriteTimeout:   cfg.Backend.Timeout*time.Duration(cfg.Backend.Retries+1) + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.BearerToken(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("cartd", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(gctx, cfg.Session.SweepInterval)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
