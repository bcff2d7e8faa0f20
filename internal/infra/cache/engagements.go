// Package cache fronts slow lookups with Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/logger"
)

const defaultTTL = 10 * time.Minute

// EngagementCache remembers engagements that are known to exist. Misses are
// never cached, so a freshly registered engagement is visible immediately.
type EngagementCache struct {
	client *redis.Client
	next   reviews.EngagementDirectory
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func NewEngagementCache(client *redis.Client, next reviews.EngagementDirectory, ttl time.Duration, log *logger.Logger) *EngagementCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EngagementCache{client: client, next: next, ttl: ttl, prefix: "engagement:", log: log}
}

func (c *EngagementCache) key(tenant, ref string) string {
	return c.prefix + tenant + ":" + ref
}

// Exists consults Redis first. A Redis failure falls through to the backing
// directory rather than failing the request.
func (c *EngagementCache) Exists(ctx context.Context, tenant, ref string) (bool, error) {
	key := c.key(tenant, ref)
	n, err := c.client.Exists(ctx, key).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		c.log.Warn("engagement cache read failed", "key", key, "error", err)
	}

	ok, err := c.next.Exists(ctx, tenant, ref)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.client.Set(ctx, key, "1", c.ttl).Err(); err != nil {
		c.log.Warn("engagement cache write failed", "key", key, "error", err)
	}
	return true, nil
}

// RedisChecker adapts a client to the health endpoint.
type RedisChecker struct {
	Client *redis.Client
}

func (r RedisChecker) Check(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
