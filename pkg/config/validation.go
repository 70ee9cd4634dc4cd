package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints declared in the validate tags plus
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Cache.Policy.UsesFiles() && cfg.Cache.DownloadDir == "" {
		return fmt.Errorf("cache.download_dir is required for cache policy %q", cfg.Cache.Policy)
	}
	return nil
}
