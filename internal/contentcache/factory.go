package contentcache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Driver names for New.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Options configures cache construction.
type Options struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New creates a content cache for the configured driver.
// Supported drivers: "memory" (default), "redis".
func New(opts Options) (Cache, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryCache(), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisCache(client), nil
	default:
		return nil, fmt.Errorf("unknown content cache driver: %s (supported: memory, redis)", opts.Driver)
	}
}
