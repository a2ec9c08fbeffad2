package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quka-ai/supportchat/pkg/types"
)

// NewRedisClient parses cfg.URL and applies the connection policy shared by
// the limiter and the knowledge cache.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url, %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	return redis.NewClient(opts), nil
}

// Cache adapts a redis client to types.Cache.
type Cache struct {
	redis redis.UniversalClient
}

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{redis: client}
}

func (c *Cache) SetEx(ctx context.Context, key, value string, expiresAt time.Duration) error {
	return c.redis.SetEx(ctx, key, value, expiresAt).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	res, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", types.ErrCacheMiss
	}
	return res, err
}

func (c *Cache) Del(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key).Err()
}
