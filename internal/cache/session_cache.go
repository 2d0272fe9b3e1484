package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"churchcms/api/internal/models"
)

// SessionCache is a short-TTL read-through cache in front of the session
// table, keyed by token digest. A per-user index set records every live
// cache key so revoke-all can purge without scanning. The cache is an
// availability hedge only: callers treat every error as a miss.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

type cachedSession struct {
	User    models.User    `json:"user"`
	Session models.Session `json:"session"`
}

func tokenKey(tokenHash []byte) string {
	return "session:" + hex.EncodeToString(tokenHash)
}

func userKey(userID string) string {
	return "session_keys:" + userID
}

func (c *SessionCache) Get(ctx context.Context, tokenHash []byte) (models.User, models.Session, bool) {
	if c == nil || c.client == nil {
		return models.User{}, models.Session{}, false
	}

	raw, err := c.client.Get(ctx, tokenKey(tokenHash)).Bytes()
	if err != nil {
		return models.User{}, models.Session{}, false
	}

	var entry cachedSession
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.User{}, models.Session{}, false
	}
	return entry.User, entry.Session, true
}

func (c *SessionCache) Set(ctx context.Context, user models.User, session models.Session) error {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := json.Marshal(cachedSession{User: user, Session: session})
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}

	key := tokenKey(session.TokenHash)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, userKey(user.ID), key)
	pipe.Expire(ctx, userKey(user.ID), c.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	return nil
}

func (c *SessionCache) DeleteToken(ctx context.Context, tokenHash []byte) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, tokenKey(tokenHash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("evict session: %w", err)
	}
	return nil
}

// DeleteUser evicts every cached session belonging to userID.
func (c *SessionCache) DeleteUser(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	keys, err := c.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list session keys: %w", err)
	}

	keys = append(keys, userKey(userID))
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict user sessions: %w", err)
	}
	return nil
}
