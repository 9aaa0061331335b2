package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lehrershow/songsubmit/internal/logger"
)

// Cache is a thin wrapper over a Redis client used for lookup caching and
// rate limiting. Every lookup treats Redis as optional: errors degrade to a miss.
type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

// New connects to Redis and verifies the connection with a PING.
func New(addr, password string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log := logger.Default().WithComponent("cache")
	log.Info(ctx, "connected to redis", logger.Fields{"addr": addr})
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		log:    logger.Default().WithComponent("cache"),
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping is used by the readiness check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", logger.Fields{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache get failed", logger.Fields{"key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", logger.Fields{"key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache set failed", logger.Fields{"key": key, "error": err.Error()})
		return err
	}
	return nil
}

// GetJSON decodes a cached JSON value into dst. A missing or undecodable
// entry reports false.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.log.Warn(ctx, "cache entry undecodable", logger.Fields{"key": key, "error": err.Error()})
		return false
	}
	return true
}

// SetJSON stores v as JSON
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}
