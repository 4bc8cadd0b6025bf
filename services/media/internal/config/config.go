package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/CommerceCheckout/pkg/config"
	"github.com/utafrali/CommerceCheckout/pkg/tracing"
)

// Backends for metadata and object storage.
const (
	BackendPostgres = "postgres"
	BackendMinio    = "minio"
	BackendMemory   = "memory"
)

// Config holds all configuration for the media service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"MEDIA_HTTP_PORT" envDefault:"8010"`

	// Upload rules. An empty allowlist accepts every sniffed type.
	MaxFileSize  int64    `env:"MEDIA_MAX_FILE_SIZE" envDefault:"10485760"`
	AllowedTypes []string `env:"MEDIA_ALLOWED_TYPES" envDefault:"image/jpeg,image/png,image/gif,image/webp,application/pdf,text/plain" envSeparator:","`

	// Backends
	MetadataStore string `env:"MEDIA_METADATA_STORE" envDefault:"postgres"`
	ObjectStore   string `env:"MEDIA_OBJECT_STORE" envDefault:"minio"`

	// Prefix for public object URLs. Empty omits URLs from responses.
	BaseURL string `env:"MEDIA_BASE_URL" envDefault:""`

	// MinIO / S3
	MinioEndpoint     string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	MinioAccessKey    string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinioSecretKey    string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinioBucket       string `env:"MINIO_BUCKET" envDefault:"media"`
	MinioRegion       string `env:"MINIO_REGION" envDefault:"us-east-1"`
	MinioSecure       bool   `env:"MINIO_SECURE" envDefault:"false"`
	MinioCreateBucket bool   `env:"MINIO_CREATE_BUCKET" envDefault:"true"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"commerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"commerce_secret"`
	PostgresDB   string `env:"MEDIA_DB_NAME" envDefault:"media_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns           int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThresholdMs int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka. An empty broker list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load media config: %w", err)
	}
	cfg.Tracing.ServiceName = "media"
	return cfg, nil
}

// Validate checks configuration invariants. pkgconfig.Load calls it.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("MEDIA_MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	switch c.MetadataStore {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("MEDIA_METADATA_STORE must be %q or %q, got %q", BackendPostgres, BackendMemory, c.MetadataStore)
	}
	switch c.ObjectStore {
	case BackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("MEDIA_OBJECT_STORE must be %q or %q, got %q", BackendMinio, BackendMemory, c.ObjectStore)
	}
	return c.Tracing.Validate()
}

// SlowQueryThreshold returns the slow query logging threshold. Zero disables it.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
