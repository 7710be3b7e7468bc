package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gp:"

// RedisPropertyCache shares cached global properties between API
// instances. The caller owns the client.
type RedisPropertyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPropertyCache(client *redis.Client, ttl time.Duration) *RedisPropertyCache {
	return &RedisPropertyCache{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *RedisPropertyCache) Get(ctx context.Context, name string) (*GlobalProperty, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(ctx, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get global property from cache: %w", err)
	}
	var gp GlobalProperty
	if err := json.Unmarshal(data, &gp); err != nil {
		_ = c.client.Del(ctx, redisKeyPrefix+cacheKey(ctx, name))
		return nil, false, fmt.Errorf("decode cached global property: %w", err)
	}
	return &gp, true, nil
}

func (c *RedisPropertyCache) Set(ctx context.Context, gp *GlobalProperty) error {
	if gp == nil {
		return nil
	}
	data, err := json.Marshal(gp)
	if err != nil {
		return fmt.Errorf("encode global property: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+cacheKey(ctx, gp.Property), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set global property in cache: %w", err)
	}
	return nil
}

func (c *RedisPropertyCache) Delete(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+cacheKey(ctx, name)).Err(); err != nil {
		return fmt.Errorf("delete global property from cache: %w", err)
	}
	return nil
}
