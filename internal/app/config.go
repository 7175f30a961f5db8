package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CARTD_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Backend     BackendConfig
	DatabaseURL string `usage:"PostgreSQL URL of the fallback menu catalog; empty keeps it in memory" flag:"database-url"`
	RedisURL    string `usage:"Redis URL of the local order journal; empty keeps it in memory" flag:"redis-url"`
	Pricing     PricingConfig
	Checkout    CheckoutConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// BackendConfig points at the marketplace API.
type BackendConfig struct {
	URL     string        `usage:"Marketplace backend base URL" flag:"backend-url"`
	Timeout time.Duration `default:"5s" usage:"Timeout of a single backend request" flag:"backend-timeout"`
	Retries int           `default:"2" usage:"Extra attempts for backend reads on transient errors" flag:"backend-retries"`
}

// PricingConfig holds the bill parameters. Amounts are decimal strings.
type PricingConfig struct {
	FreeDeliveryThreshold string `default:"500" usage:"Item total above which delivery is free"`
	DeliveryFee           string `default:"40" usage:"Delivery fee at or below the threshold"`
	PlatformFee           string `default:"5" usage:"Platform fee per order"`
	GSTRate               string `default:"0.05" usage:"GST rate applied to the item total"`
}

// CheckoutConfig holds checkout product switches.
type CheckoutConfig struct {
	OptimisticFallback bool `default:"false" usage:"Record a local order when the backend is unreachable" flag:"optimistic-checkout"`
	// JournalTTL bounds how long local orders are kept in redis.
	JournalTTL time.Duration `default:"720h" usage:"Retention of local orders and cancel markers" flag:"journal-ttl"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration `default:"30m" usage:"Drop sessions idle for this long; 0 keeps them" flag:"session-idle-ttl"`
	SweepInterval time.Duration `default:"1m" usage:"How often idle sessions are swept" flag:"session-sweep-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CARTD",
		Files:     []string{"config.yaml", "/etc/cartd/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend URL is required: set CARTD_BACKEND_URL")
	}
	if _, err := c.Pricing.Calculator(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CARTD_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Calculator parses the amounts and returns a pricing calculator.
func (p PricingConfig) Calculator() (*pricing.Calculator, error) {
	var cfg pricing.Config
	for _, f := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"free delivery threshold", p.FreeDeliveryThreshold, &cfg.FreeDeliveryThreshold},
		{"delivery fee", p.DeliveryFee, &cfg.DeliveryFee},
		{"platform fee", p.PlatformFee, &cfg.PlatformFee},
		{"gst rate", p.GSTRate, &cfg.GSTRate},
	} {
		v, err := decimal.NewFromString(f.value)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s %q", f.name, f.value)
		}
		if v.IsNegative() {
			return nil, errors.Errorf("%s must not be negative", f.name)
		}
		*f.dst = v
	}
	return pricing.NewCalculator(cfg), nil
}
