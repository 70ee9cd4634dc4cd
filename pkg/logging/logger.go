// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a minimum severity.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Format selects the output encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"

	// FormatConsole writes colored human-readable lines.
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	Level  LogLevel `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format Format   `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`

	// Output defaults to os.Stderr.
	Output io.Writer `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns info-level JSON logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Setup installs a logger built from cfg as the global zerolog logger and
// returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format == FormatConsole {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel validates a level name.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-task detail
//   - Cache hits and misses, tier backfills
//   - Individual fetch completions
//   - Outcomes dropped because their batch is gone
//
// Info: lifecycle
//   - Scheduler start and close
//   - Batch start and finish
//   - Cache slot load and clear
//   - Server startup/shutdown
//
// Warn: degraded but continuing
//   - Clamped configuration values
//   - Batches destroyed early (cancel, context loss, shutdown)
//   - Queue anomalies
//   - Cache write-back, flush or decode failures
//
// Error: operator attention
//   - Backend open failures
//   - Server errors
//
// Context Fields:
//   - component: emitting subsystem (scheduler, fetch-worker, cache-slots, ...)
//   - batch_id: batch identifier
//   - task_id: task identifier
//   - slot: cache slot name
//   - tier: cache tier (store, file)
//   - duration: fetch duration
