package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	"github.com/utafrali/CommerceCheckout/pkg/health"
	"github.com/utafrali/CommerceCheckout/pkg/httpclient"
	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/middleware"
	"github.com/utafrali/CommerceCheckout/pkg/tracing"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/config"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/event"
	handler "github.com/utafrali/CommerceCheckout/services/cart/internal/handler/http"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
	boltrepo "github.com/utafrali/CommerceCheckout/services/cart/internal/repository/bolt"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository/postgres"
	redisrepo "github.com/utafrali/CommerceCheckout/services/cart/internal/repository/redis"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/service"
	"github.com/utafrali/CommerceCheckout/services/cart/migrations"
	mediaclient "github.com/utafrali/CommerceCheckout/services/media/client"
	paymentclient "github.com/utafrali/CommerceCheckout/services/payment/client"
)

// checkoutDrainTimeout bounds how long shutdown waits for running checkouts.
const checkoutDrainTimeout = 10 * time.Second

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	boltLedger     *boltrepo.Ledger
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	checkout       *service.CheckoutService
	resumer        *service.Resumer
	sweeper        *service.RetentionSweeper
	tracerShutdown func(context.Context) error
	stopLimiter    context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeStores()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Cart store.
	a.rdb, err = database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.rdb.Ping(ctx).Err()
	})

	// Idempotency ledger and the order snapshots kept beside it.
	ledger, orders, err := a.openLedger(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Kafka producer. A nil publisher keeps the service running without a broker.
	var publisher pkgkafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Downstream clients. The orchestrator owns retries, so the transport
	// never retries on its own.
	payments := paymentclient.New(paymentclient.Config{
		BaseURL: cfg.PaymentServiceURL,
		Timeout: config.Millis(cfg.PaymentTimeoutMs),
	}, a.breaker("payment"), logger)
	media := mediaclient.New(mediaclient.Config{
		BaseURL:   cfg.MediaServiceURL,
		Namespace: cfg.MediaNamespace,
		Owner:     cfg.MediaOwner,
		Timeout:   config.Millis(cfg.MediaTimeoutMs),
	}, a.breaker("media"), logger)

	// Build the dependency graph.
	carts := redisrepo.NewCartStore(a.rdb, time.Duration(cfg.CartTTL)*time.Hour)
	cartService := service.NewCartService(carts, payments, eventProducer, logger)
	orderService := service.NewOrderService(orders, logger)
	checkoutService := service.NewCheckoutService(carts, ledger, orders, payments, media, eventProducer, logger, service.CheckoutConfig{
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.CheckoutMaxAttempts,
			Initial:     config.Millis(cfg.CheckoutBackoffInitialMs),
			Max:         config.Millis(cfg.CheckoutBackoffMaxMs),
			Multiplier:  cfg.CheckoutBackoffMultiplier,
			Jitter:      cfg.CheckoutBackoffJitter,
		},
		PaymentTimeout:   config.Millis(cfg.PaymentTimeoutMs),
		MediaTimeout:     config.Millis(cfg.MediaTimeoutMs),
		CartWriteTimeout: config.Millis(cfg.CheckoutCartWriteMs),
		InFlightWait:     config.Millis(cfg.CheckoutInFlightWaitMs),
		InFlightPoll:     100 * time.Millisecond,
	})
	a.checkout = checkoutService

	a.resumer = service.NewResumer(checkoutService, ledger, logger,
		time.Duration(cfg.ResumeIntervalSeconds)*time.Second,
		time.Duration(cfg.ResumeStaleSeconds)*time.Second,
		cfg.ResumeBatchSize,
	)
	a.sweeper = service.NewRetentionSweeper(ledger, logger,
		time.Duration(cfg.RetentionHours)*time.Hour,
		time.Duration(cfg.RetentionSweepMinutes)*time.Minute,
	)

	// Checkout ingress limiter. Its idle-bucket janitor lives until shutdown.
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	a.stopLimiter = stopLimiter
	limiter := middleware.RateLimit(limiterCtx, middleware.RateLimitConfig{
		RPS:     cfg.RateLimitRPS,
		Burst:   cfg.RateLimitBurst,
		IdleTTL: 5 * time.Minute,
	}, logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(cartService, checkoutService, orderService, healthHandler, logger, handler.RouterConfig{
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
		CheckoutLimiter:    limiter,
		CORS:               cors,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// openLedger connects the configured ledger backend and registers its health
// check. Orders live in the same backend.
func (a *App) openLedger(ctx context.Context, h *health.Handler) (repository.Ledger, repository.OrderStore, error) {
	cfg := a.cfg
	if cfg.LedgerBackend == config.LedgerBolt {
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerBoltPath), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create ledger directory: %w", err)
		}
		l, err := boltrepo.Open(cfg.LedgerBoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt ledger: %w", err)
		}
		a.boltLedger = l
		h.RegisterCritical("ledger", l.Ping)
		a.logger.Info("opened Bolt ledger", slog.String("path", cfg.LedgerBoltPath))
		return l, l.Orders(), nil
	}

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "cart")

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(config.Millis(cfg.SlowQueryThresholdMs), a.logger)
	}

	h.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewLedger(pool), postgres.NewOrderStore(pool), nil
}

// breaker builds a non-retrying client behind a named circuit breaker.
func (a *App) breaker(name string) *httpclient.CircuitBreakerClient {
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  a.cfg.CBMaxRequests,
		Interval:     time.Duration(a.cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(a.cfg.CBTimeout) * time.Second,
		FailureRatio: a.cfg.CBFailureRatio,
		MinRequests:  a.cfg.CBMinRequests,
	}
	a.logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", a.cfg.CBTimeout),
	)
	return httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, a.logger)
}

// Run starts the HTTP server and the background workers, and blocks until
// the context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.resumer.Run(gctx) })
	g.Go(func() error { return a.sweeper.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Checkout drives still running detached from their requests
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. Ledger and cart stores
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.checkout != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), checkoutDrainTimeout)
		defer drainCancel()
		if err := a.checkout.Wait(drainCtx); err != nil {
			// Whatever is left is picked up by the resumer after restart.
			a.logger.Error("checkout drain incomplete", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeStores())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.stopLimiter != nil {
		a.stopLimiter()
	}
	if a.boltLedger != nil {
		if err := a.boltLedger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bolt ledger: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
