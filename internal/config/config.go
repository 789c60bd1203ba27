package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Rabbit    RabbitConfig
	Payment   PaymentConfig
	Webhook   WebhookConfig
	Platform  PlatformConfig
	Cron      CronConfig
	RateLimit RateLimitConfig
	Otel      OtelConfig
}

type ServerConfig struct {
	Host     string `envconfig:"SERVER_HOST" default:"localhost"`
	Port     int    `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
}

type PostgresConfig struct {
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Name     string `envconfig:"POSTGRES_DB"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

// RedisConfig with an empty Addr disables caching, idempotency keys, rate
// limiting, cross-instance slot events and job locks.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// RabbitConfig with an empty URL disables broker events, broker refunds
// and the payment consumer.
type RabbitConfig struct {
	URL             string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"tripslot.booking"`
	PaymentExchange string `envconfig:"PAYMENT_EXCHANGE" default:"tripslot.payment"`
	PaymentQueue    string `envconfig:"PAYMENT_QUEUE" default:"tripslot.payment-results"`
	Prefetch        int    `envconfig:"RABBIT_PREFETCH" default:"16"`
}

// PaymentConfig with an empty APIURL disables checkout.
type PaymentConfig struct {
	APIURL  string        `envconfig:"PAYMENT_API_URL"`
	APIKey  string        `envconfig:"PAYMENT_API_KEY"`
	Timeout time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"5s"`
}

// WebhookConfig with an empty Secret leaves the callback routes open.
type WebhookConfig struct {
	Secret string `envconfig:"WEBHOOK_SECRET"`
}

type PlatformConfig struct {
	TZ                    string        `envconfig:"PLATFORM_TZ" default:"UTC"`
	IndefiniteHorizonDays int           `envconfig:"INDEFINITE_HORIZON_DAYS" default:"90"`
	WaitlistWindow        time.Duration `envconfig:"WAITLIST_WINDOW" default:"24h"`
	RefundBatch           int           `envconfig:"REFUND_BATCH" default:"100"`
	CacheTTL              time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"30s"`
	IdempotencyTTL        time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"2h"`

	location *time.Location
}

// Location is the platform time zone resolved during Load.
func (p PlatformConfig) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

type CronConfig struct {
	Enabled  bool   `envconfig:"CRON_ENABLED" default:"true"`
	Generate string `envconfig:"CRON_GENERATE" default:"0 2 * * *"`
	Sweep    string `envconfig:"CRON_SWEEP" default:"0 * * * *"`
	Refunds  string `envconfig:"CRON_REFUNDS" default:"*/10 * * * *"`
}

type RateLimitConfig struct {
	Limit  int           `envconfig:"BOOKING_RATE_LIMIT" default:"10"`
	Window time.Duration `envconfig:"BOOKING_RATE_WINDOW" default:"1m"`
}

type OtelConfig struct {
	Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"tripslot"`
	Environment string `envconfig:"APP_ENV" default:"dev"`
}

// New loads .env when present, then the process environment.
func New() (*Config, error) {
	_ = godotenv.Load()
	return Load()
}

func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Postgres.User == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
		}
		if cfg.Postgres.Password == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
		}
		if cfg.Postgres.Name == "" {
			return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
		}
	default:
		return nil, fmt.Errorf("%s: unknown STORAGE_DRIVER %q", op, cfg.Storage.Driver)
	}

	loc, err := time.LoadLocation(cfg.Platform.TZ)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid PLATFORM_TZ: %w", op, err)
	}
	cfg.Platform.location = loc

	if cfg.Platform.IndefiniteHorizonDays < 1 {
		return nil, fmt.Errorf("%s: INDEFINITE_HORIZON_DAYS must be positive", op)
	}
	if cfg.Platform.WaitlistWindow <= 0 {
		return nil, fmt.Errorf("%s: WAITLIST_WINDOW must be positive", op)
	}

	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
