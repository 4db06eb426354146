// Package postgres provides the PostgreSQL-backed SessionRepository.
// It implements connection pooling and the atomic conditional usage update
// required by the spend-limit ledger, using the pgx driver.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// DBConnection manages the PostgreSQL connection pool lifecycle.
type DBConnection struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewDBConnection initializes the pool and performs an initial health check.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Second
	poolConfig.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnTimeout)*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info(ctx, "postgres connection pool initialized",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns))

	return &DBConnection{pool: pool, logger: log}, nil
}

// Pool exposes the underlying pgx pool to repositories.
func (c *DBConnection) Pool() *pgxpool.Pool {
	return c.pool
}

// HealthCheck pings the database.
func (c *DBConnection) HealthCheck(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases the pool.
func (c *DBConnection) Close() {
	c.pool.Close()
}
