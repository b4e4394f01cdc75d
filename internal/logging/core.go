package logging

import (
	"errors"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newCore builds the stream core and, when a provider is given, an otelzap
// core feeding the OpenTelemetry log pipeline.
func newCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Stream != "" {
		out := zapcore.Lock(os.Stderr)
		if cfg.Stream == "stdout" {
			out = zapcore.Lock(os.Stdout)
		}
		build := func(level zapcore.LevelEnabler) zapcore.Core {
			return zapcore.NewCore(newEncoder(cfg.Format), out, level)
		}
		cores = append(cores, sampledTee(build, cfg.Level, cfg.Sampling))
	}

	if cfg.OTEL && provider != nil {
		cores = append(cores, otelzap.NewCore("yojana", otelzap.WithLoggerProvider(provider)))
	}

	if len(cores) == 0 {
		return nil, errors.New("no log output available")
	}
	return zapcore.NewTee(cores...), nil
}

// sampledTee splits output at Warn: quieter entries pass through a sampler,
// warnings and errors are always written.
func sampledTee(build func(zapcore.LevelEnabler) zapcore.Core, level zapcore.LevelEnabler, s SamplingConfig) zapcore.Core {
	if !s.Enabled {
		return build(level)
	}
	loud := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && level.Enabled(l)
	})
	quiet := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.WarnLevel && level.Enabled(l)
	})
	return zapcore.NewTee(
		build(loud),
		zapcore.NewSamplerWithOptions(build(quiet), s.Tick, s.Initial, s.Thereafter),
	)
}

func newEncoder(format string) zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	if format == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(enc)
	}
	return zapcore.NewJSONEncoder(enc)
}
