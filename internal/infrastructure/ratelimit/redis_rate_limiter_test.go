package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisRateLimiter(client, 3, logger.NewNoop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "principal_1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be admitted", i+1)
	}

	allowed, err := limiter.Allow(ctx, "principal_1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Budgets are per key.
	allowed, err = limiter.Allow(ctx, "principal_2")
	require.NoError(t, err)
	assert.True(t, allowed)

	// A fresh window resets the budget.
	mr.FastForward(2 * constants.RateLimitWindow)
	allowed, err = limiter.Allow(ctx, "principal_1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
