// Package redis provides the redis-backed caches of the sessiond service:
// the revoked-session blacklist and the two-level session read cache.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// Connection wraps the shared redis client.
type Connection struct {
	Client *goredis.Client
}

// NewConnection creates the client and verifies connectivity.
func NewConnection(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (*Connection, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info(ctx, "redis connection initialized", logger.String("address", cfg.Address))
	return &Connection{Client: client}, nil
}

// HealthCheck pings redis.
func (c *Connection) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Connection) Close() error {
	return c.Client.Close()
}
