// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrBadDurationBounds is returned when the segment duration window
	// is empty or inverted.
	ErrBadDurationBounds = errors.New("config: MIN_DURATION_SEC must be positive and below MAX_DURATION_SEC")
	// ErrBadSampleRate is returned for a non-positive analysis rate.
	ErrBadSampleRate = errors.New("config: SAMPLE_RATE must be positive")
)

// Config holds all configuration for the preprocessing engine.
type Config struct {
	// External tools
	FFmpegPath string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"` // empty = resolve from PATH

	// Diarization settings
	DiarizationModelPath string `env:"DIARIZATION_MODEL_PATH" json:"diarization_model_path,omitempty"`
	InferenceSlots       int64  `env:"INFERENCE_SLOTS, default=1" json:"inference_slots"`

	// Analysis settings
	SampleRate     int     `env:"SAMPLE_RATE, default=16000" json:"sample_rate"`
	MinDurationSec float64 `env:"MIN_DURATION_SEC, default=3" json:"min_duration_sec"`
	MaxDurationSec float64 `env:"MAX_DURATION_SEC, default=7" json:"max_duration_sec"`

	// Denoise settings
	DenoiseTimeoutSec int `env:"DENOISE_TIMEOUT_SEC, default=15" json:"denoise_timeout_sec"`

	// Output settings
	NormalizeTargetDB float64 `env:"NORMALIZE_TARGET_DB, default=-3" json:"normalize_target_db"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// DiarizationEnabled returns true when a local model path is configured.
func (c *Config) DiarizationEnabled() bool {
	return c.DiarizationModelPath != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return ErrBadSampleRate
	}
	if c.MinDurationSec <= 0 || c.MaxDurationSec < c.MinDurationSec {
		return ErrBadDurationBounds
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{FFmpegPath: %s, DiarizationModelPath: %s, InferenceSlots: %d, SampleRate: %d, MinDurationSec: %.1f, MaxDurationSec: %.1f, DenoiseTimeoutSec: %d, NormalizeTargetDB: %.1f, LogFormat: %s, LogLevel: %s}",
		c.FFmpegPath,
		c.DiarizationModelPath,
		c.InferenceSlots,
		c.SampleRate,
		c.MinDurationSec,
		c.MaxDurationSec,
		c.DenoiseTimeoutSec,
		c.NormalizeTargetDB,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
