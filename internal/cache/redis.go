// Package cache stores JSON-encoded values in Redis with a fixed TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "shop:"
	defaultTTL = 5 * time.Minute
)

// kv is the subset of redis.Cmdable used by Cache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type Cache struct {
	client kv
	ttl    time.Duration
}

// New wraps client. A non-positive ttl selects five minutes.
func New(client kv, ttl time.Duration) (*Cache, error) {
	if client == nil {
		return nil, errors.New("cache: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Dial connects to the Redis server at addr and checks it answers PING.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Cache, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	c, err := New(client, ttl)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return c, client, nil
}

// Get decodes the value under key into dst. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, keyPrefix+k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Incr atomically increments the counter under key and returns the new
// value. Counters never expire.
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr %q: %w", key, err)
	}
	return n, nil
}
