package logging

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/yojana/internal/config"
)

// Config holds logger settings derived from config.LoggingConfig.
type Config struct {
	Level  zapcore.Level
	Format string
	// Stream is "stdout", "stderr" or empty for OTEL-only output. The CLI
	// logs to stderr so command output stays machine readable.
	Stream   string
	OTEL     bool
	Caller   bool
	Sampling SamplingConfig
}

// SamplingConfig thins repeated debug and info entries. Warnings and errors
// are always written.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// NewDefaultConfig returns the settings used when nothing is configured.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stream: "stderr",
		Caller: true,
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
	}
}

// FromAppConfig derives a logger config from the application config.
func FromAppConfig(app config.LoggingConfig) (*Config, error) {
	level, err := zapcore.ParseLevel(app.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", app.Level, err)
	}
	cfg := NewDefaultConfig()
	cfg.Level = level
	cfg.Format = app.Format
	cfg.Caller = app.Caller
	cfg.OTEL = app.OTEL
	return cfg, nil
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	switch {
	case c.Format != "json" && c.Format != "console":
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	case c.Stream != "" && c.Stream != "stdout" && c.Stream != "stderr":
		return fmt.Errorf("output stream must be 'stdout' or 'stderr', got %q", c.Stream)
	case c.Stream == "" && !c.OTEL:
		return errors.New("at least one output must be enabled (stream or otel)")
	case c.Sampling.Enabled && c.Sampling.Tick <= 0:
		return errors.New("sampling tick must be > 0 when sampling is enabled")
	}
	return nil
}
