// Package cache provides the redis-backed rate limiter and event dedup store.
// Every operation is fail-open: a cache outage must never drop a lead, so
// errors degrade to "allowed" / "not a duplicate" and are logged.
package cache

import (
	"github.com/redis/go-redis/v9"

	"adecis_backend/platform/config"
)

// NewRedisClient builds a go-redis client from the configured URL.
// Returns nil when no cache is configured; the limiter treats a nil client
// as a permanently failed backend and allows everything through.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opt), nil
}
