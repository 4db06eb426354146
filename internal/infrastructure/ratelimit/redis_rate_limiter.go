// Package ratelimit provides distributed issuance rate limiting using Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// fixedWindowScript atomically counts a request within the current window
// and reports whether it stays under the limit.
const fixedWindowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
    return 0
end
return 1
`

// RedisRateLimiter is a fixed-window counter limiter shared across replicas.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	script *goredis.Script
	logger logger.Logger
}

// NewRedisRateLimiter creates a limiter allowing limit requests per fixed
// window (the standard issuance window from pkg/constants).
func NewRedisRateLimiter(client *goredis.Client, limit int, log logger.Logger) service.RateLimitService {
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: constants.RateLimitWindow,
		script: goredis.NewScript(fixedWindowScript),
		logger: log.WithComponent("RedisRateLimiter"),
	}
}

func (r *RedisRateLimiter) key(key string) string {
	window := time.Now().UnixMilli() / r.window.Milliseconds()
	return fmt.Sprintf("sessiond:rl:%s:%d", key, window)
}

// Allow reports whether one more issuance is admitted for key in the current
// window.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := r.script.Run(ctx, r.client,
		[]string{r.key(key)},
		r.limit, r.window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
