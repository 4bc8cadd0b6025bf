package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/CommerceCheckout/pkg/config"
	"github.com/utafrali/CommerceCheckout/pkg/tracing"
)

// Ledger backends.
const (
	LedgerPostgres = "postgres"
	LedgerBolt     = "bolt"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	// Cart TTL in hours (default: 7 days). Zero keeps carts forever.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Idempotency ledger
	LedgerBackend  string `env:"LEDGER_BACKEND" envDefault:"postgres"`
	LedgerBoltPath string `env:"LEDGER_BOLT_PATH" envDefault:"data/ledger.db"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"commerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"commerce_secret"`
	PostgresDB   string `env:"CART_DB_NAME" envDefault:"cart_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka. An empty broker list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream services
	PaymentServiceURL string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8005"`
	PaymentTimeoutMs  int    `env:"PAYMENT_TIMEOUT_MS" envDefault:"5000"`
	MediaServiceURL   string `env:"MEDIA_SERVICE_URL" envDefault:"http://localhost:8010"`
	MediaTimeoutMs    int    `env:"MEDIA_TIMEOUT_MS" envDefault:"10000"`
	MediaNamespace    string `env:"MEDIA_NAMESPACE" envDefault:"checkout"`
	MediaOwner        string `env:"MEDIA_OWNER" envDefault:"attachments"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Checkout retry policy for payment calls and the cart write
	CheckoutMaxAttempts       int     `env:"CHECKOUT_MAX_ATTEMPTS" envDefault:"4"`
	CheckoutBackoffInitialMs  int     `env:"CHECKOUT_BACKOFF_INITIAL_MS" envDefault:"200"`
	CheckoutBackoffMaxMs      int     `env:"CHECKOUT_BACKOFF_MAX_MS" envDefault:"2000"`
	CheckoutBackoffMultiplier float64 `env:"CHECKOUT_BACKOFF_MULTIPLIER" envDefault:"2"`
	CheckoutBackoffJitter     float64 `env:"CHECKOUT_BACKOFF_JITTER" envDefault:"0.2"`
	CheckoutCartWriteMs       int     `env:"CHECKOUT_CART_WRITE_TIMEOUT_MS" envDefault:"2000"`
	CheckoutInFlightWaitMs    int     `env:"CHECKOUT_INFLIGHT_WAIT_MS" envDefault:"3000"`

	// Background workers
	ResumeIntervalSeconds int `env:"CHECKOUT_RESUME_INTERVAL_SECONDS" envDefault:"30"`
	ResumeStaleSeconds    int `env:"CHECKOUT_RESUME_STALE_SECONDS" envDefault:"60"`
	ResumeBatchSize       int `env:"CHECKOUT_RESUME_BATCH_SIZE" envDefault:"50"`
	RetentionHours        int `env:"CHECKOUT_RETENTION_HOURS" envDefault:"168"`
	RetentionSweepMinutes int `env:"CHECKOUT_RETENTION_SWEEP_MINUTES" envDefault:"60"`

	// Checkout ingress
	RateLimitRPS       float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"40"`
	MaxAttachmentBytes int64   `env:"CHECKOUT_MAX_ATTACHMENT_BYTES" envDefault:"10485760"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "cart"
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	switch c.LedgerBackend {
	case LedgerPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case LedgerBolt:
		if c.LedgerBoltPath == "" {
			return fmt.Errorf("LEDGER_BOLT_PATH is required")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", LedgerPostgres, LedgerBolt, c.LedgerBackend)
	}
	for name, rawURL := range map[string]string{
		"PAYMENT_SERVICE_URL": c.PaymentServiceURL,
		"MEDIA_SERVICE_URL":   c.MediaServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	if c.CheckoutMaxAttempts < 1 {
		return fmt.Errorf("CHECKOUT_MAX_ATTEMPTS must be at least 1, got %d", c.CheckoutMaxAttempts)
	}
	if c.CheckoutBackoffMultiplier < 1 {
		return fmt.Errorf("CHECKOUT_BACKOFF_MULTIPLIER must be at least 1, got %v", c.CheckoutBackoffMultiplier)
	}
	if c.CheckoutBackoffJitter < 0 || c.CheckoutBackoffJitter > 1 {
		return fmt.Errorf("CHECKOUT_BACKOFF_JITTER must be between 0.0 and 1.0, got %v", c.CheckoutBackoffJitter)
	}
	if c.CheckoutBackoffInitialMs > c.CheckoutBackoffMaxMs {
		return fmt.Errorf("CHECKOUT_BACKOFF_INITIAL_MS (%d) exceeds CHECKOUT_BACKOFF_MAX_MS (%d)", c.CheckoutBackoffInitialMs, c.CheckoutBackoffMaxMs)
	}
	if c.ResumeIntervalSeconds < 1 || c.RetentionSweepMinutes < 1 {
		return fmt.Errorf("worker intervals must be positive")
	}
	if c.RetentionHours < 1 {
		return fmt.Errorf("CHECKOUT_RETENTION_HOURS must be positive, got %d", c.RetentionHours)
	}
	if c.MaxAttachmentBytes < 1 {
		return fmt.Errorf("CHECKOUT_MAX_ATTACHMENT_BYTES must be positive")
	}
	return c.Tracing.Validate()
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
