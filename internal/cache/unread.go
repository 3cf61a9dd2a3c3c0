// Package cache holds the Redis-backed unread-notification counter cache.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orgdesk/hrops/internal/logger"
)

const unreadTTL = 60 * time.Second

// UnreadCache caches per-user unread counts in Redis. Cache faults degrade
// to the database count and are logged at debug level only.
type UnreadCache struct {
	client *redis.Client
	log    *logger.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, redisURL string, log *logger.Logger) (*UnreadCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &UnreadCache{client: client, log: log}, nil
}

// Close releases the Redis connection.
func (c *UnreadCache) Close() error {
	return c.client.Close()
}

func (c *UnreadCache) key(userID string) string {
	return "unread:" + userID
}

// Get returns the cached count. The second return is false on miss or fault.
func (c *UnreadCache) Get(ctx context.Context, userID string) (int, bool) {
	val, err := c.client.Get(ctx, c.key(userID)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("unread cache read failed")
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores a count with a short TTL.
func (c *UnreadCache) Set(ctx context.Context, userID string, count int) {
	if err := c.client.Set(ctx, c.key(userID), count, unreadTTL).Err(); err != nil {
		c.log.Debug().Err(err).Msg("unread cache write failed")
	}
}

// Invalidate drops the cached counts for the given users.
func (c *UnreadCache) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, uid := range userIDs {
		keys[i] = c.key(uid)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Debug().Err(err).Msg("unread cache invalidation failed")
	}
}
