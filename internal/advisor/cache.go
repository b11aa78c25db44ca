package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	cacheVersionKey = "stock:alerts:version"
	cachePrefix     = "stock:alerts:v"
)

// Cache stores alert query results under a generation number. Readers take
// the generation before querying the database and write back under it, so a
// result computed before an Invalidate can never be served after it.
type Cache interface {
	Version(ctx context.Context) (int64, bool)
	Get(ctx context.Context, version int64, key string, dest any) bool
	Set(ctx context.Context, version int64, key string, value any)
	Invalidate(ctx context.Context)
}

// NoopCache is used when no Redis is configured.
type NoopCache struct{}

func (NoopCache) Version(context.Context) (int64, bool) { return 0, false }
func (NoopCache) Get(context.Context, int64, string, any) bool { return false }
func (NoopCache) Set(context.Context, int64, string, any) {}
func (NoopCache) Invalidate(context.Context) {}

// RedisCache namespaces keys with a version counter. Invalidate bumps the
// counter; old entries are never read again and age out with the TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Version(ctx context.Context) (int64, bool) {
	v, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("read alert cache version")
		return 0, false
	}
	return v, true
}

func (c *RedisCache) key(version int64, key string) string {
	return fmt.Sprintf("%s%d:%s", cachePrefix, version, key)
}

func (c *RedisCache) Get(ctx context.Context, version int64, key string, dest any) bool {
	raw, err := c.client.Get(ctx, c.key(version, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("read alert cache")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("decode cached alerts")
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, version int64, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("encode alerts for cache")
		return
	}
	if err := c.client.Set(ctx, c.key(version, key), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("write alert cache")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		c.log.Error().Err(err).Msg("invalidate alert cache")
	}
}
