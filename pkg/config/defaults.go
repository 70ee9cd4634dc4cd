package config

import (
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/Sternrassler/batch-fetcher/pkg/logging"
	"github.com/rs/zerolog/log"
)

// Defaults not owned by another package.
const (
	DefaultServerAddr      = ":8080"
	DefaultBackend         = "badger"
	DefaultShutdownTimeout = 30 * time.Second
)

// GetDefaultConfig returns a fully populated default configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values and clamps fetch settings into range.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyFetchDefaults(&cfg.Fetch)
	applyCacheDefaults(&cfg.Cache)
	applyServerDefaults(&cfg.Server)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *logging.Config) {
	if level, err := logging.ParseLevel(string(cfg.Level)); err == nil {
		cfg.Level = level
	}
	if cfg.Format == "" {
		cfg.Format = logging.FormatJSON
	}
}

func applyFetchDefaults(cfg *FetchConfig) {
	normalized := fetch.BatchConfig{
		MaxParallel: cfg.MaxParallel,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.Timeout,
	}.Normalize()

	if cfg.MaxParallel != 0 && cfg.MaxParallel != normalized.MaxParallel {
		log.Warn().
			Int("requested", cfg.MaxParallel).
			Int("applied", normalized.MaxParallel).
			Msg("fetch.max_parallel out of range, clamped")
	}
	if cfg.MaxRetries != 0 && cfg.MaxRetries != normalized.MaxRetries {
		log.Warn().
			Int("requested", cfg.MaxRetries).
			Int("applied", normalized.MaxRetries).
			Msg("fetch.max_retries out of range, clamped")
	}
	if cfg.Timeout != 0 && cfg.Timeout != normalized.Timeout {
		log.Warn().
			Dur("requested", cfg.Timeout).
			Dur("applied", normalized.Timeout).
			Msg("fetch.timeout out of range, clamped")
	}

	cfg.MaxParallel = normalized.MaxParallel
	cfg.MaxRetries = normalized.MaxRetries
	cfg.Timeout = normalized.Timeout
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetch.DefaultUserAgent
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Policy == "" {
		cfg.Policy = cache.DefaultPolicy
	}
	if cfg.Slot == "" {
		cfg.Slot = cache.DefaultSlotName
	}
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
}
