package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/constants"
)

// revocationCache is a shared blacklist of revoked session ids. Entries live
// until the credential would have expired anyway, so the set stays bounded.
type revocationCache struct {
	conn *Connection
}

// NewRevocationCache creates the redis-backed revocation blacklist.
func NewRevocationCache(conn *Connection) service.RevocationCache {
	return &revocationCache{conn: conn}
}

func revocationKey(sessionID string) string {
	return fmt.Sprintf("sessiond:rv:%s", sessionID)
}

func (c *revocationCache) MarkRevoked(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past expiry; the lazy-expiry path covers it.
		return nil
	}
	if ttl > constants.RevocationCacheTTL {
		ttl = constants.RevocationCacheTTL
	}
	return c.conn.Client.Set(ctx, revocationKey(sessionID), "1", ttl).Err()
}

func (c *revocationCache) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.conn.Client.Exists(ctx, revocationKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
