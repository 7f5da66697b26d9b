// Package telemetry provides Prometheus metrics for the support pipeline and
// OpenTelemetry tracer bootstrap for exporting spans over OTLP/gRPC.
package telemetry
