package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/redis/go-redis/v9"
)

// BatchConfig returns the per-batch settings. fetch.max_parallel is the
// scheduler's global cap, so batches inherit it rather than repeat it.
func (c *Config) BatchConfig() fetch.BatchConfig {
	return fetch.BatchConfig{
		MaxRetries:  c.Fetch.MaxRetries,
		Timeout:     c.Fetch.Timeout,
		CachePolicy: c.Cache.Policy,
		SlotName:    c.Cache.Slot,
		DownloadDir: c.Cache.DownloadDir,
	}.Normalize()
}

// SchedulerConfig returns scheduler settings bound to slots.
func (c *Config) SchedulerConfig(slots *cache.Slots) fetch.SchedulerConfig {
	return fetch.SchedulerConfig{
		MaxParallel: c.Fetch.MaxParallel,
		UserAgent:   c.Fetch.UserAgent,
		Slots:       slots,
		DownloadDir: c.Cache.DownloadDir,
	}
}

// OpenSlots opens the configured slot backend. The returned close function
// waits for pending flushes and releases the backend.
func (c *Config) OpenSlots(ctx context.Context) (*cache.Slots, func() error, error) {
	switch c.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: c.Cache.RedisAddr,
			DB:   c.Cache.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", c.Cache.RedisAddr, err)
		}
		slots := cache.NewSlots(cache.NewRedisBackend(client), c.Cache.Slot)
		closeFn := func() error {
			return errors.Join(slots.Close(), client.Close())
		}
		return slots, closeFn, nil

	case "badger", "":
		backend, err := cache.OpenBadgerBackend(c.Cache.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		slots := cache.NewSlots(backend, c.Cache.Slot)
		return slots, slots.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
}
