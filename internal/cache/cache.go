// Package cache stores short-lived JSON values in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a Redis client and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// JSON is a typed cache whose values are JSON encoded under prefix.
type JSON[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewJSON returns a cache that writes entries with the given ttl.
func NewJSON[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *JSON[T] {
	return &JSON[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSON[T]) key(key string) string {
	return c.prefix + key
}

// Get returns the cached value for key and whether it was present.
func (c *JSON[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return value, false, nil
		}
		return value, false, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (c *JSON[T]) Set(ctx context.Context, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, c.key(key), payload, c.ttl).Err()
}
