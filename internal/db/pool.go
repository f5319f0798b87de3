// Package db builds the PostgreSQL connection pool used by the postgres ranking source.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/panorama-game/rating-server/internal/config"
)

const (
	defaultMaxConns        = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnectTimeout  = 10 * time.Second

	// DefaultConnectMaxElapsed bounds how long NewPool keeps retrying an unreachable database
	DefaultConnectMaxElapsed = 1 * time.Minute
)

// PoolOption customizes pool creation
type PoolOption func(*poolOptions)

type poolOptions struct {
	maxElapsed time.Duration
	backOff    backoff.BackOff
}

// WithConnectMaxElapsed overrides how long connecting is retried
func WithConnectMaxElapsed(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		o.maxElapsed = d
	}
}

// WithBackOff overrides the retry policy used while connecting
func WithBackOff(b backoff.BackOff) PoolOption {
	return func(o *poolOptions) {
		o.backOff = b
	}
}

// NewPool parses cfg into a pgx pool configuration, creates the pool and
// pings the database, retrying with exponential backoff until it answers.
// Configuration errors are not retried.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...PoolOption) (*pgxpool.Pool, error) {
	poolConfig, err := ParsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	o := &poolOptions{
		maxElapsed: DefaultConnectMaxElapsed,
		backOff:    backoff.NewExponentialBackOff(),
	}
	for _, opt := range opts {
		opt(o)
	}

	attempt := 0
	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			// NewWithConfig only fails on invalid configuration
			return nil, backoff.Permanent(fmt.Errorf("failed to create database connection pool: %w", err))
		}

		pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			slog.Warn("Database not reachable yet",
				"host", cfg.Host,
				"attempt", attempt,
				"error", err)
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		return pool, nil
	},
		backoff.WithBackOff(o.backOff),
		backoff.WithMaxElapsedTime(o.maxElapsed),
	)
	if err != nil {
		return nil, err
	}

	slog.Info("Database connection pool created",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"max_conns", poolConfig.MaxConns)

	return pool, nil
}

// ParsePoolConfig converts the database section of the config into a pgx pool configuration
func ParsePoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	poolConfig.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return poolConfig, nil
}
