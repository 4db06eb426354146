package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) (*Connection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Connection{Client: client}, mr
}

func TestRevocationCache(t *testing.T) {
	conn, mr := newTestConnection(t)
	cache := NewRevocationCache(conn)
	ctx := context.Background()

	revoked, err := cache.IsRevoked(ctx, "session_a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, cache.MarkRevoked(ctx, "session_a", time.Now().Add(time.Hour)))
	revoked, err = cache.IsRevoked(ctx, "session_a")
	require.NoError(t, err)
	assert.True(t, revoked)

	// The entry lapses with the credential's own expiry.
	mr.FastForward(2 * time.Hour)
	revoked, err = cache.IsRevoked(ctx, "session_a")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationCachePastExpiryIsNoop(t *testing.T) {
	conn, _ := newTestConnection(t)
	cache := NewRevocationCache(conn)
	ctx := context.Background()

	// Already past expiry: lazy expiry covers it, no blacklist entry needed.
	require.NoError(t, cache.MarkRevoked(ctx, "session_b", time.Now().Add(-time.Minute)))
	revoked, err := cache.IsRevoked(ctx, "session_b")
	require.NoError(t, err)
	assert.False(t, revoked)
}
