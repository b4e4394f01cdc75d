// Package logging provides structured logging with OpenTelemetry integration.
//
// Entries go to a stream, to the OpenTelemetry log pipeline via otelzap, or
// both. Context-aware methods add trace_id, span_id, query.id and operation.
// Repeated debug and info entries are sampled; warnings and errors never are.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithQueryID(ctx, uuid.NewString())
//	logger.Info(ctx, "answer synthesized", zap.Float64("confidence", c))
//
// Components below the CLI take a plain *zap.Logger (see Logger.Underlying)
// and fall back to zap.NewNop() when given nil.
package logging
