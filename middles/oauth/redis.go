package oauth

import (
	"errors"
	"log/slog"
	"time"

	"cattlecloud.net/go/scope"
	"github.com/redis/go-redis/v9"
)

// RedisCache is an implementation of Cache backed by redis, allowing sessions
// to outlive process restarts and be shared across instances.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisCache creates a RedisCache storing keys under prefix.
func NewRedisCache(client *redis.Client, prefix string, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client:  client,
		prefix:  prefix,
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

func (rc *RedisCache) key(k string) string {
	return rc.prefix + k
}

func (rc *RedisCache) Get(k string) (string, bool) {
	ctx, cancel := scope.TTL(rc.timeout)
	defer cancel()

	value, err := rc.client.Get(ctx, rc.key(k)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false
	case err != nil:
		// an unreachable cache means no session can be verified
		rc.logger.Warn("redis cache get failed", "error", err)
		return "", false
	default:
		return value, true
	}
}

func (rc *RedisCache) Put(k, value string, ttl time.Duration) {
	ctx, cancel := scope.TTL(rc.timeout)
	defer cancel()

	if err := rc.client.Set(ctx, rc.key(k), value, ttl).Err(); err != nil {
		rc.logger.Warn("redis cache put failed", "error", err)
	}
}

func (rc *RedisCache) Remove(k string) {
	ctx, cancel := scope.TTL(rc.timeout)
	defer cancel()

	if err := rc.client.Del(ctx, rc.key(k)).Err(); err != nil {
		rc.logger.Warn("redis cache remove failed", "error", err)
	}
}
