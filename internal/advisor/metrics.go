package advisor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/yojana/internal/answer"
)

const instrumentationName = "github.com/fyrsmithlabs/yojana/internal/advisor"

type metrics struct {
	relaxations metric.Int64Counter
	confidence  metric.Float64Histogram
	drift       metric.Int64Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}

	var err error
	m.relaxations, err = meter.Int64Counter(
		"yojana.retrieval.relaxations_total",
		metric.WithDescription("Answered queries by the relaxation level that produced results"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		logger.Warn("failed to create relaxation counter", zap.Error(err))
	}

	m.confidence, err = meter.Float64Histogram(
		"yojana.answer.confidence",
		metric.WithDescription("Confidence score of synthesized answers"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.45, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		logger.Warn("failed to create confidence histogram", zap.Error(err))
	}

	m.drift, err = meter.Int64Counter(
		"yojana.drift.analyses_total",
		metric.WithDescription("Drift analyses by outcome"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		logger.Warn("failed to create drift counter", zap.Error(err))
	}
	return m
}

func (m *metrics) recordAnswer(ctx context.Context, a *answer.Answer) {
	attrs := metric.WithAttributes(
		attribute.String("relaxation", a.Relaxation.String()),
		attribute.String("intent", a.Intent.String()),
	)
	if m.relaxations != nil {
		m.relaxations.Add(ctx, 1, attrs)
	}
	if m.confidence != nil {
		m.confidence.Record(ctx, a.Confidence, attrs)
	}
}

func (m *metrics) recordDrift(ctx context.Context, outcome string) {
	if m.drift != nil {
		m.drift.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
