// Package config loads batch-fetcher settings from a YAML file and
// BATCHFETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/logging"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. BATCHFETCH_FETCH_MAX_PARALLEL.
const EnvPrefix = "BATCHFETCH"

// Config is the complete application configuration.
type Config struct {
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
	Fetch   FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Cache   CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`

	// ShutdownTimeout bounds graceful shutdown of the server and scheduler.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// FetchConfig holds scheduler and per-batch fetch settings. Out-of-range
// numbers are clamped when loaded, not rejected.
type FetchConfig struct {
	MaxParallel int           `mapstructure:"max_parallel" yaml:"max_parallel"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent   string        `mapstructure:"user_agent" validate:"required" yaml:"user_agent"`
}

// CacheConfig selects cache tiers and the slot store backend.
type CacheConfig struct {
	Policy      cache.Policy `mapstructure:"policy" validate:"oneof=store file both" yaml:"policy"`
	Slot        string       `mapstructure:"slot" validate:"required" yaml:"slot"`
	DownloadDir string       `mapstructure:"download_dir" yaml:"download_dir"`

	// Backend is "badger" or "redis".
	Backend string `mapstructure:"backend" validate:"oneof=badger redis" yaml:"backend"`

	// BadgerDir holds the badger database; empty keeps it in memory.
	BadgerDir string `mapstructure:"badger_dir" yaml:"badger_dir"`

	RedisAddr string `mapstructure:"redis_addr" validate:"required_if=Backend redis" yaml:"redis_addr,omitempty"`
	RedisDB   int    `mapstructure:"redis_db" validate:"gte=0" yaml:"redis_db,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Load loads configuration from file, environment and defaults.
//
// Precedence (highest to lowest):
//  1. Environment variables (BATCHFETCH_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default config directory. A missing file
// is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")
	v.SetConfigName("batchfetch")
	v.SetConfigType("yaml")
}

// registerDefaults makes every key known to viper so environment variables
// apply even without a config file.
func registerDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("logging.level", string(d.Logging.Level))
	v.SetDefault("logging.format", string(d.Logging.Format))
	v.SetDefault("fetch.max_parallel", d.Fetch.MaxParallel)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout.String())
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("cache.policy", string(d.Cache.Policy))
	v.SetDefault("cache.slot", d.Cache.Slot)
	v.SetDefault("cache.download_dir", d.Cache.DownloadDir)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.badger_dir", d.Cache.BadgerDir)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout.String())
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout.String())
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout.String())
}

// readConfigFile reports whether a config file was read.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		policyDecodeHook(),
	)
}

// policyDecodeHook accepts policy aliases such as "memory" or "savegame".
func policyDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(cache.Policy("")) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return cache.ParsePolicy(s)
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/batch-fetcher, ~/.config/batch-fetcher
// or "." when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "batch-fetcher")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "batch-fetcher")
}

// DefaultConfigPath returns where `config init` writes by default.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "batchfetch.yaml")
}
