package contentcache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for cached artifact references.
const artifactKeyPrefix = "artifact:"

// RedisCache is a content cache backed by Redis, so cached artifacts survive
// process restarts. Keys are stored without TTL: entries never expire.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed content cache on the given client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the artifact reference for digest if present.
func (c *RedisCache) Get(ctx context.Context, digest string) (string, bool, error) {
	val, err := c.client.Get(ctx, artifactKeyPrefix+digest).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Put stores the artifact reference for digest.
func (c *RedisCache) Put(ctx context.Context, digest, artifactRef string) error {
	return c.client.Set(ctx, artifactKeyPrefix+digest, artifactRef, 0).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
