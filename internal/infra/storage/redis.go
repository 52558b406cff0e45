package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore caches values in Redis without expiry; freshness is judged by readers.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Get returns the value for key, or nil if absent.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// MGet returns values in the order of keys, nil for absent ones.
func (r *RedisStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make([][]byte, len(vals))
	for i, v := range vals {
		switch s := v.(type) {
		case string:
			result[i] = []byte(s)
		case []byte:
			result[i] = s
		}
	}
	return result, nil
}

// Set stores value under key with no expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Health checks Redis connection health.
func (r *RedisStore) Health(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
