package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each slot as one Redis hash: field = id, value = JSON record.
type RedisBackend struct {
	redis *redis.Client
}

// NewRedisBackend creates a slot backend on top of an existing Redis client.
func NewRedisBackend(redisClient *redis.Client) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisBackend{
		redis: redisClient,
	}
}

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context, slot string) ([]*Entry, error) {
	fields, err := r.redis.HGetAll(ctx, slotKey(slot)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	entries := make([]*Entry, 0, len(fields))
	for id, raw := range fields {
		entry, err := decodeEntry([]byte(raw))
		if err != nil {
			CacheErrors.WithLabelValues("load").Inc()
			return nil, fmt.Errorf("record %q: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Save implements Backend.
func (r *RedisBackend) Save(ctx context.Context, slot string, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	key := slotKey(slot)
	pipe := r.redis.Pipeline()
	for _, entry := range entries {
		data, err := encodeEntry(entry)
		if err != nil {
			CacheErrors.WithLabelValues("save").Inc()
			return err
		}
		pipe.HSet(ctx, key, entry.ID, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Clear implements Backend.
func (r *RedisBackend) Clear(ctx context.Context, slot string) error {
	if err := r.redis.Del(ctx, slotKey(slot)).Err(); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close implements Backend. The Redis client is owned by the caller.
func (r *RedisBackend) Close() error {
	return nil
}
