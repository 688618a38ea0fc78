// Package cache is a read-through Redis cache for expensive query results.
// Misses and marshal errors are surfaced to the caller, who decides whether
// a cache failure is fatal; for this service it never is.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ernie/scout-tools/internal/domain"
)

// Cache wraps a Redis client with JSON serialization and a fixed TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SimilarKey builds the cache key for one similarity search. Every parameter
// that changes the result is part of the key.
func SimilarKey(target string, mode domain.SimilarityMode, limit int) string {
	return fmt.Sprintf("similar:%s:%s:%d", target, mode, limit)
}

// Get loads a cached value into dest. The boolean reports whether the key
// was present.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding cached value for %s: %w", key, err)
	}
	return true, nil
}

// Set stores a value under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
