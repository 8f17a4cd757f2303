// Package cache holds ProfileCache implementations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/msomdec/murmur/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "murmur:profile:"

// RedisProfileCache stores public profiles as JSON strings with a TTL.
type RedisProfileCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisProfileCache creates a cache backed by client. Entries expire
// after ttl.
func NewRedisProfileCache(client redis.UniversalClient, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{client: client, ttl: ttl}
}

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func key(id string) string {
	return keyPrefix + id
}

// Get returns the cached profile. The bool is false on a miss.
func (c *RedisProfileCache) Get(ctx context.Context, id string) (*domain.Profile, bool, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return &profile, true, nil
}

// Set stores profile under its ID.
func (c *RedisProfileCache) Set(ctx context.Context, profile domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := c.client.Set(ctx, key(profile.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache profile: %w", err)
	}
	return nil
}

// Invalidate drops the cached profiles for ids.
func (c *RedisProfileCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate profiles: %w", err)
	}
	return nil
}

// Nop is a ProfileCache that never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*domain.Profile, bool, error) { return nil, false, nil }

func (Nop) Set(context.Context, domain.Profile) error { return nil }

func (Nop) Invalidate(context.Context, ...string) error { return nil }
