// Package telemetry wires graph and node execution into OpenTelemetry
// tracing and metrics, with metrics exported through the OTel Prometheus
// exporter so a host can scrape them with Prometheus directly.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "dagflow-engine"

	metricGraphExecutions = "graph.executions.total"
	metricGraphDuration   = "graph.execution.duration"
	metricGraphSuccess    = "graph.executions.success.total"
	metricGraphFailure    = "graph.executions.failure.total"
	metricNodeExecutions  = "node.executions.total"
	metricNodeDuration    = "node.execution.duration"
	metricNodeSuccess     = "node.executions.success.total"
	metricNodeFailure     = "node.executions.failure.total"
)

// Provider manages OpenTelemetry setup and provides access to tracers and
// meters.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	graphExecutions metric.Int64Counter
	graphDuration   metric.Float64Histogram
	graphSuccess    metric.Int64Counter
	graphFailure    metric.Int64Counter
	nodeExecutions  metric.Int64Counter
	nodeDuration    metric.Float64Histogram
	nodeSuccess     metric.Int64Counter
	nodeFailure     metric.Int64Counter

	mu sync.RWMutex
}

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	EnableTracing  bool
	EnableMetrics  bool
}

// DefaultConfig returns default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		EnableTracing:  true,
		EnableMetrics:  true,
	}
}

// NewProvider creates a telemetry provider with a Prometheus metrics
// exporter, initializing OpenTelemetry per the given configuration.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.EnableMetrics {
		if err := provider.initMetrics(res); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	if config.EnableTracing {
		provider.initTracing()
	}

	return provider, nil
}

func (p *Provider) initMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(serviceName)

	return p.createMetricInstruments()
}

func (p *Provider) initTracing() {
	// Global tracer provider; a host wanting OTLP/Jaeger export calls
	// otel.SetTracerProvider before constructing this Provider.
	p.tracerProvider = otel.GetTracerProvider()
	p.tracer = p.tracerProvider.Tracer(serviceName)
}

func (p *Provider) createMetricInstruments() error {
	var err error

	if p.graphExecutions, err = p.meter.Int64Counter(metricGraphExecutions,
		metric.WithDescription("Total number of graph executions")); err != nil {
		return err
	}
	if p.graphDuration, err = p.meter.Float64Histogram(metricGraphDuration,
		metric.WithDescription("Graph execution duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.graphSuccess, err = p.meter.Int64Counter(metricGraphSuccess,
		metric.WithDescription("Total number of successful graph executions")); err != nil {
		return err
	}
	if p.graphFailure, err = p.meter.Int64Counter(metricGraphFailure,
		metric.WithDescription("Total number of failed graph executions")); err != nil {
		return err
	}
	if p.nodeExecutions, err = p.meter.Int64Counter(metricNodeExecutions,
		metric.WithDescription("Total number of node executions")); err != nil {
		return err
	}
	if p.nodeDuration, err = p.meter.Float64Histogram(metricNodeDuration,
		metric.WithDescription("Node execution duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.nodeSuccess, err = p.meter.Int64Counter(metricNodeSuccess,
		metric.WithDescription("Total number of successful node executions")); err != nil {
		return err
	}
	if p.nodeFailure, err = p.meter.Int64Counter(metricNodeFailure,
		metric.WithDescription("Total number of failed node executions")); err != nil {
		return err
	}
	return nil
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracer
}

// Meter returns the meter for recording metrics.
func (p *Provider) Meter() metric.Meter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meter
}

// RecordGraphExecution records metrics for one graph execution.
func (p *Provider) RecordGraphExecution(ctx context.Context, graphName string, duration time.Duration, success bool, nodesExecuted int) {
	if p.meter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("graph.name", graphName),
		attribute.Int("nodes.executed", nodesExecuted),
	}
	p.graphExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.graphDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		p.graphSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		p.graphFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordNodeExecution records metrics for one node execution.
func (p *Provider) RecordNodeExecution(ctx context.Context, nodeName, nodeType string, duration time.Duration, success bool) {
	if p.meter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("node.name", nodeName),
		attribute.String("node.type", nodeType),
	}
	p.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.nodeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		p.nodeSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		p.nodeFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Shutdown gracefully shuts down the telemetry provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}
