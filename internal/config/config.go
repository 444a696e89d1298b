// Package config loads service settings from the environment. A .env file
// in the working directory is read first; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Tenant database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds every setting of the service.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"tenantprov.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	TenantDB  TenantDB  `envPrefix:"TENANT_DB_"`
	Pool      Pool      `envPrefix:"POOL_"`
	Provision Provision `envPrefix:"PROVISION_"`
	OTel      OTel      `envPrefix:"OTEL_"`
}

// TenantDB selects where tenant databases live.
type TenantDB struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	// DSN points at the PostgreSQL maintenance database.
	DSN string `env:"DSN"`
	// Dir holds one SQLite file per tenant.
	Dir string `env:"DIR" envDefault:"./data/tenants"`
}

type Pool struct {
	MaxSize        int           `env:"MAX_SIZE" envDefault:"20"`
	MinAvailable   int           `env:"MIN_AVAILABLE" envDefault:"2"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"10m"`
}

type Provision struct {
	MaxAttempts    int             `env:"MAX_ATTEMPTS" envDefault:"3"`
	Backoff        []time.Duration `env:"BACKOFF" envDefault:"1m,5m,15m"`
	AttemptTimeout time.Duration   `env:"ATTEMPT_TIMEOUT" envDefault:"10m"`
	Workers        int             `env:"WORKERS" envDefault:"4"`
}

type OTel struct {
	ServiceName    string `env:"SERVICE_NAME" envDefault:"tenantprov"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	// Exporter is stdout, otlp or none.
	Exporter string `env:"EXPORTER" envDefault:"none"`
	Insecure bool   `env:"EXPORTER_OTLP_INSECURE"`
}

// Load reads .env when present, then parses and validates the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe fallback.
func (c Config) Validate() error {
	switch c.TenantDB.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.TenantDB.DSN == "" {
			return errors.New("TENANT_DB_DSN is required when TENANT_DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("TENANT_DB_DRIVER %q is not one of postgres, sqlite", c.TenantDB.Driver)
	}

	if c.Pool.MaxSize < 0 {
		return errors.New("POOL_MAX_SIZE must not be negative")
	}
	if c.Pool.MinAvailable > c.Pool.MaxSize {
		return fmt.Errorf("POOL_MIN_AVAILABLE (%d) exceeds POOL_MAX_SIZE (%d)", c.Pool.MinAvailable, c.Pool.MaxSize)
	}
	if c.Pool.RefillInterval <= 0 {
		return errors.New("POOL_REFILL_INTERVAL must be positive")
	}

	if c.Provision.MaxAttempts < 1 {
		return errors.New("PROVISION_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.Provision.Backoff) == 0 && c.Provision.MaxAttempts > 1 {
		return errors.New("PROVISION_BACKOFF needs at least one delay when retries are enabled")
	}
	if c.Provision.AttemptTimeout <= 0 {
		return errors.New("PROVISION_ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}
