package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cache stores whole collections as JSON blobs keyed per user.
type cache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func newCache(client *redislib.Client, prefix string, ttl time.Duration, logger *zap.Logger) cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// get reports a miss for any redis failure so the caller falls through to the primary store.
func (c cache) get(ctx context.Context, userID string, out interface{}) bool {
	if c.client == nil {
		return false
	}
	result, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if err != redislib.Nil {
			c.logger.Warn("cache read failed", zap.String("key", c.key(userID)), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(result, out); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", c.key(userID)), zap.Error(err))
		c.invalidate(ctx, userID)
		return false
	}
	return true
}

func (c cache) set(ctx context.Context, userID string, value interface{}) {
	if c.client == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(userID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", c.key(userID)), zap.Error(err))
	}
}

func (c cache) invalidate(ctx context.Context, userID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("key", c.key(userID)), zap.Error(err))
	}
}

func (c cache) key(userID string) string {
	return fmt.Sprintf("%s%s", c.prefix, userID)
}
