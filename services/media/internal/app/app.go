package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	"github.com/utafrali/CommerceCheckout/pkg/health"
	pkgkafka "github.com/utafrali/CommerceCheckout/pkg/kafka"
	"github.com/utafrali/CommerceCheckout/pkg/tracing"
	"github.com/utafrali/CommerceCheckout/services/media/internal/config"
	"github.com/utafrali/CommerceCheckout/services/media/internal/event"
	handler "github.com/utafrali/CommerceCheckout/services/media/internal/handler/http"
	"github.com/utafrali/CommerceCheckout/services/media/internal/repository"
	"github.com/utafrali/CommerceCheckout/services/media/internal/repository/memory"
	"github.com/utafrali/CommerceCheckout/services/media/internal/repository/postgres"
	"github.com/utafrali/CommerceCheckout/services/media/internal/service"
	"github.com/utafrali/CommerceCheckout/services/media/internal/storage"
	memstorage "github.com/utafrali/CommerceCheckout/services/media/internal/storage/memory"
	miniostorage "github.com/utafrali/CommerceCheckout/services/media/internal/storage/minio"
	"github.com/utafrali/CommerceCheckout/services/media/migrations"
)

// App wires together all dependencies and runs the media service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil && a.pool != nil {
			a.pool.Close()
		}
	}()

	a.tracerShutdown, err = tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	repo, err := a.openMetadata(ctx, healthHandler)
	if err != nil {
		return nil, err
	}
	objects, err := a.openObjects(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	var publisher pkgkafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	mediaService := service.NewMediaService(repo, objects, event.NewProducer(publisher, logger), service.Limits{
		MaxFileSize:         cfg.MaxFileSize,
		AllowedContentTypes: cfg.AllowedTypes,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewRouter(mediaService, healthHandler, cfg.MaxFileSize, logger),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// openMetadata selects the metadata repository and registers its health check.
func (a *App) openMetadata(ctx context.Context, h *health.Handler) (repository.MediaRepository, error) {
	cfg := a.cfg
	if cfg.MetadataStore == config.BackendMemory {
		a.logger.Warn("using in-memory media metadata; records are lost on restart")
		return memory.NewMediaRepository(), nil
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
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "media")

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, a.logger)
	}

	h.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewMediaRepository(pool), nil
}

// openObjects selects the object store and registers its health check.
func (a *App) openObjects(ctx context.Context, h *health.Handler) (storage.Storage, error) {
	cfg := a.cfg
	if cfg.ObjectStore == config.BackendMemory {
		a.logger.Warn("using in-memory object storage; objects are lost on restart")
		return memstorage.New(cfg.BaseURL), nil
	}

	s, err := miniostorage.New(ctx, miniostorage.Config{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		Region:        cfg.MinioRegion,
		Secure:        cfg.MinioSecure,
		CreateBucket:  cfg.MinioCreateBucket,
		PublicBaseURL: cfg.BaseURL,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}
	a.logger.Info("connected to object storage",
		slog.String("endpoint", cfg.MinioEndpoint),
		slog.String("bucket", cfg.MinioBucket),
	)
	h.RegisterCritical("object_storage", s.Ping)
	return s, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown drains HTTP, flushes spans, then closes Kafka and the database.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
