package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/yojana/internal/config"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stream = ""
	cfg.OTEL = true

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithQueryID(context.Background(), "q-1")

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
	}{
		{"debug", func() { logger.Debug(ctx, "debug message") }, zapcore.DebugLevel},
		{"info", func() { logger.Info(ctx, "info message") }, zapcore.InfoLevel},
		{"warn", func() { logger.Warn(ctx, "warn message") }, zapcore.WarnLevel},
		{"error", func() { logger.Error(ctx, "error message") }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.Reset()
			tt.logFunc()

			logs := logger.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, "q-1", logs[0].ContextMap()["query.id"])
		})
	}
}

func TestContextFields_TraceCorrelation(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithOperation(ctx, "answer_query")

	fields := ContextFields(ctx)
	keys := make(map[string]string, len(fields))
	for _, f := range fields {
		keys[f.Key] = f.String
	}

	assert.Equal(t, traceID.String(), keys["trace_id"])
	assert.Equal(t, spanID.String(), keys["span_id"])
	assert.Equal(t, "answer_query", keys["operation"])
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestLogger_Named(t *testing.T) {
	logger := NewTestLogger()
	child := logger.Named("drift")

	child.Info(context.Background(), "timeline computed", zap.String("policy", "NREGA"))

	logger.AssertLogged(t, zapcore.InfoLevel, "timeline computed")
	logger.AssertField(t, "timeline computed", "policy", "NREGA")
	logger.AssertNotLogged(t, zapcore.WarnLevel, "")
	assert.Equal(t, "drift", logger.All()[0].LoggerName)
}

func TestLogger_DisabledLevelSkipsContextFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core)}

	logger.Debug(WithQueryID(context.Background(), "q-2"), "hidden")
	logger.Info(context.Background(), "shown")

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "shown", observed.All()[0].Message)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "debug", Format: "console", Caller: false})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Caller)
	assert.Equal(t, "stderr", cfg.Stream)

	cfg, err = FromAppConfig(config.LoggingConfig{Level: "WARN", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level)

	_, err = FromAppConfig(config.LoggingConfig{Level: "shout", Format: "json"})
	assert.Error(t, err)
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	stored := NewTestLogger()
	ctx := WithLogger(context.Background(), stored.Logger)
	assert.Same(t, stored.Logger, FromContext(ctx))
}

func TestSampledTee_WarningsAndErrorsNeverSampled(t *testing.T) {
	var recorded []*observer.ObservedLogs
	build := func(level zapcore.LevelEnabler) zapcore.Core {
		core, logs := observer.New(level)
		recorded = append(recorded, logs)
		return core
	}
	logger := zap.New(sampledTee(build, zapcore.DebugLevel, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    1,
		Thereafter: 0,
	}))

	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Warn("slow search")
		logger.Error("failure")
	}

	require.Len(t, recorded, 2)
	loud, quiet := recorded[0], recorded[1]
	assert.Equal(t, 1, quiet.FilterMessage("repeated").Len())
	assert.Equal(t, 5, loud.FilterMessage("slow search").Len())
	assert.Equal(t, 5, loud.FilterMessage("failure").Len())
	assert.Zero(t, loud.FilterMessage("repeated").Len())
}

func TestSampledTee_Disabled(t *testing.T) {
	calls := 0
	build := func(level zapcore.LevelEnabler) zapcore.Core {
		calls++
		core, _ := observer.New(level)
		return core
	}
	core := sampledTee(build, zapcore.InfoLevel, SamplingConfig{})
	assert.Equal(t, 1, calls)
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
