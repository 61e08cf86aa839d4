// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Periodic sweep settings
	Sweep SweepConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"metagraph"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"metagraph"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// SweepConfig controls the periodic repair sweeps. Intervals use Go duration
// syntax; an interval of 0 disables the individual sweep.
type SweepConfig struct {
	Enabled bool `env:"SWEEP_ENABLED" envDefault:"true"`

	// AllPairsInterval schedules the all-pairs relationship audit.
	AllPairsInterval time.Duration `env:"SWEEP_ALL_PAIRS_INTERVAL" envDefault:"6h"`

	// GroupAuditInterval schedules the group-part exclusivity audit.
	GroupAuditInterval time.Duration `env:"SWEEP_GROUP_AUDIT_INTERVAL" envDefault:"1h"`

	// SentinelCleanupInterval schedules removal of persisted literal-ALL
	// driver nodes left behind by legacy writers.
	SentinelCleanupInterval time.Duration `env:"SWEEP_SENTINEL_CLEANUP_INTERVAL" envDefault:"24h"`

	// PageSize bounds how many objects an all-pairs sweep loads per page.
	PageSize int `env:"SWEEP_PAGE_SIZE" envDefault:"200"`

	// PairConcurrency bounds concurrent pair repairs within one page.
	PairConcurrency int `env:"SWEEP_PAIR_CONCURRENCY" envDefault:"4"`
}

// NewConfig parses configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Sweep.PageSize <= 0 {
		cfg.Sweep.PageSize = 200
	}
	if cfg.Sweep.PairConcurrency <= 0 {
		cfg.Sweep.PairConcurrency = 1
	}
	return cfg, nil
}
