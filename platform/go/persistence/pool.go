package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultApplicationName is reported to Postgres as application_name.
const DefaultApplicationName = "palmyra-directory"

// PoolConfig holds the Postgres pool settings. Zero values leave the pgx
// defaults in place.
type PoolConfig struct {
	ConnString        string        `env:"DATABASE_URL"`
	MaxConns          int32         `env:"DB_MAX_CONNS"`
	MinConns          int32         `env:"DB_MIN_CONNS"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	// StatementTimeout caps every statement server side.
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT"`
	ApplicationName  string        `env:"DB_APPLICATION_NAME" envDefault:"palmyra-directory"`
}

// PoolConfigFromEnv reads the DATABASE_URL and DB_* variables.
func PoolConfigFromEnv() (PoolConfig, error) {
	cfg, err := env.ParseAs[PoolConfig]()
	if err != nil {
		return PoolConfig{}, fmt.Errorf("parse pool config: %w", err)
	}
	return cfg, nil
}

// NewPool opens a pool and pings it once.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func (cfg PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	if cfg.ConnString == "" {
		return nil, errors.New("database url is required")
	}
	if cfg.MaxConns < 0 || cfg.MinConns < 0 {
		return nil, errors.New("pool sizes must not be negative")
	}
	if cfg.MaxConns > 0 && cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", cfg.MinConns, cfg.MaxConns)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if _, set := params["application_name"]; !set {
		name := cfg.ApplicationName
		if name == "" {
			name = DefaultApplicationName
		}
		params["application_name"] = name
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return poolConfig, nil
}

// ClosePool closes pool; nil is ignored.
func ClosePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
