package fetch

import (
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
)

// Configuration bounds. Values outside are clamped, not rejected.
const (
	MinMaxParallel     = 1
	MaxParallelLimit   = 8
	DefaultMaxParallel = 5

	MinMaxRetries     = 1
	MaxRetriesLimit   = 5
	DefaultMaxRetries = 3

	MinTimeout     = 10 * time.Second
	MaxTimeout     = 300 * time.Second
	DefaultTimeout = 10 * time.Second

	DefaultUserAgent = "batch-fetcher/0.1.0"
)

// BatchConfig holds per-batch settings.
type BatchConfig struct {
	// MaxParallel caps this batch's own in-flight tasks. Zero inherits the
	// scheduler's global cap, which is never raised or lowered by a batch.
	MaxParallel int

	// MaxRetries is accepted and clamped but not used: failed tasks are
	// never retried.
	MaxRetries int

	// Timeout per network fetch
	Timeout time.Duration

	// CachePolicy selects the cache tiers consulted before fetching
	CachePolicy cache.Policy

	// SlotName selects the persisted store slot (empty = default slot)
	SlotName string

	// DownloadDir is the file tier directory (empty = scheduler default)
	DownloadDir string
}

// DefaultBatchConfig returns the default batch configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxRetries:  DefaultMaxRetries,
		Timeout:     DefaultTimeout,
		CachePolicy: cache.DefaultPolicy,
	}
}

// Normalize fills zero values with defaults and clamps the rest into range.
// A zero MaxParallel stays zero.
func (c BatchConfig) Normalize() BatchConfig {
	if c.MaxParallel != 0 {
		c.MaxParallel = clamp(c.MaxParallel, MinMaxParallel, MaxParallelLimit)
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	c.MaxRetries = clamp(c.MaxRetries, MinMaxRetries, MaxRetriesLimit)

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	c.Timeout = clampDuration(c.Timeout, MinTimeout, MaxTimeout)

	if c.CachePolicy == "" {
		c.CachePolicy = cache.DefaultPolicy
	}
	return c
}

// SchedulerConfig holds process-wide scheduler settings.
type SchedulerConfig struct {
	// MaxParallel is the initial global in-flight cap.
	MaxParallel int

	// UserAgent sent with every fetch
	UserAgent string

	// HTTPClient performs the fetches (default: a plain http.Client).
	HTTPClient Doer

	// Decoder turns fetched bytes into images (default: imaging.StdDecoder).
	Decoder imaging.Decoder

	// Slots is the persisted store registry. When nil the scheduler opens an
	// in-memory badger backend that lives as long as the scheduler.
	Slots *cache.Slots

	// DownloadDir is the file tier directory for batches that name none.
	DownloadDir string
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
