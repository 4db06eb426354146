package redis

import (
	"context"
	"encoding/json"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// sessionCache is a two-level read cache for redacted credential records:
// an in-process L1 (go-cache) in front of a shared redis L2. Only redacted
// records are ever cached; the executor gate bypasses this cache entirely
// and reads the store.
type sessionCache struct {
	conn   *Connection
	l1     *gocache.Cache
	flight singleflight.Group
	logger logger.Logger
}

// NewSessionCache creates the two-level session read cache.
func NewSessionCache(conn *Connection, log logger.Logger) service.SessionCache {
	return &sessionCache{
		conn:   conn,
		l1:     gocache.New(constants.SessionCacheL1TTL, 2*constants.SessionCacheL1TTL),
		logger: log.WithComponent("SessionCache"),
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("sessiond:sc:%s", sessionID)
}

func (c *sessionCache) Get(ctx context.Context, sessionID string) (*models.SessionCredential, bool) {
	if cached, ok := c.l1.Get(sessionID); ok {
		if session, ok := cached.(*models.SessionCredential); ok {
			return session, true
		}
	}

	// Collapse concurrent L2 misses for the same id into one fetch.
	value, err, _ := c.flight.Do(sessionID, func() (interface{}, error) {
		raw, err := c.conn.Client.Get(ctx, sessionKey(sessionID)).Bytes()
		if err != nil {
			return nil, err
		}
		var session models.SessionCredential
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, err
		}
		return &session, nil
	})
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn(ctx, "session cache read failed",
				logger.String("session_id", sessionID))
		}
		return nil, false
	}

	session := value.(*models.SessionCredential)
	c.l1.SetDefault(sessionID, session)
	return session, true
}

func (c *sessionCache) Set(ctx context.Context, session *models.SessionCredential) error {
	// Only redacted records are cached, whatever the caller hands in.
	redacted := session.Redacted()
	raw, err := json.Marshal(redacted)
	if err != nil {
		return err
	}
	c.l1.SetDefault(session.ID, redacted)
	return c.conn.Client.Set(ctx, sessionKey(session.ID), raw, constants.SessionCacheTTL).Err()
}

func (c *sessionCache) Invalidate(ctx context.Context, sessionID string) error {
	c.l1.Delete(sessionID)
	return c.conn.Client.Del(ctx, sessionKey(sessionID)).Err()
}
