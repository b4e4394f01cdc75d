// Package telemetry wires OpenTelemetry tracing and metrics for yojana.
//
// Telemetry is disabled by default. When enabled, spans and metrics are
// exported over OTLP (gRPC or HTTP) and the global providers are replaced so
// that package-level tracers (otel.Tracer("yojana.index"), ...) pick them up.
// Failures to build exporters degrade to no-op providers instead of failing
// the command.
package telemetry
