// Package telemetry provides OpenTelemetry integration for distributed tracing and metrics.
// It enables comprehensive observability for graph execution with support for:
//   - Distributed tracing with trace IDs and span context propagation
//   - Prometheus metrics for graph and node execution statistics
//   - Custom metrics exporters and collectors
//   - Integration with industry-standard observability platforms
package telemetry
