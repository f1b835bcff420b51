package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelflow/dagflow/pkg/observer"
)

// TelemetryObserver implements observer.Observer and records telemetry data
// for graph execution events: a span per graph execution, a child span per
// node, and the counters/histograms Provider exposes.
type TelemetryObserver struct {
	provider *Provider

	mu            sync.Mutex
	graphSpan     trace.Span
	nodeSpans     map[string]trace.Span
	graphStart    time.Time
	nodeStartTime map[string]time.Time
}

// NewTelemetryObserver creates a telemetry observer backed by provider.
func NewTelemetryObserver(provider *Provider) *TelemetryObserver {
	return &TelemetryObserver{
		provider:      provider,
		nodeSpans:     make(map[string]trace.Span),
		nodeStartTime: make(map[string]time.Time),
	}
}

// OnEvent implements observer.Observer.
func (o *TelemetryObserver) OnEvent(ctx context.Context, event observer.Event) {
	switch event.Type {
	case observer.EventGraphStart:
		o.handleGraphStart(ctx, event)
	case observer.EventGraphEnd:
		o.handleGraphEnd(ctx, event)
	case observer.EventNodeStart:
		o.handleNodeStart(ctx, event)
	case observer.EventNodeSuccess:
		o.handleNodeEnd(ctx, event, true)
	case observer.EventNodeFailure:
		o.handleNodeEnd(ctx, event, false)
	}
}

func (o *TelemetryObserver) handleGraphStart(ctx context.Context, event observer.Event) {
	_, span := o.provider.Tracer().Start(ctx, "graph.execute",
		trace.WithAttributes(
			attribute.String("graph.name", event.GraphName),
			attribute.String("execution.id", event.ExecutionID),
		),
	)

	o.mu.Lock()
	o.graphSpan = span
	o.graphStart = event.Timestamp
	o.mu.Unlock()
}

func (o *TelemetryObserver) handleGraphEnd(ctx context.Context, event observer.Event) {
	o.mu.Lock()
	duration := time.Since(o.graphStart)
	span := o.graphSpan
	o.mu.Unlock()

	nodesExecuted := 0
	if val, ok := event.Metadata["nodes_executed"]; ok {
		if count, ok := val.(int); ok {
			nodesExecuted = count
		}
	}

	success := event.Status == observer.StatusSuccess
	o.provider.RecordGraphExecution(ctx, event.GraphName, duration, success, nodesExecuted)

	if span != nil {
		if event.Error != nil {
			span.RecordError(event.Error)
			span.SetStatus(codes.Error, event.Error.Error())
		} else {
			span.SetStatus(codes.Ok, "graph execution completed successfully")
		}
		span.End()
	}
}

func (o *TelemetryObserver) handleNodeStart(ctx context.Context, event observer.Event) {
	o.mu.Lock()
	spanCtx := ctx
	if o.graphSpan != nil {
		spanCtx = trace.ContextWithSpan(ctx, o.graphSpan)
	}
	o.mu.Unlock()

	_, span := o.provider.Tracer().Start(spanCtx, "node.execute",
		trace.WithAttributes(
			attribute.String("node.name", event.NodeName),
			attribute.String("node.type", event.NodeType),
			attribute.String("execution.id", event.ExecutionID),
		),
	)

	o.mu.Lock()
	o.nodeSpans[event.NodeName] = span
	o.nodeStartTime[event.NodeName] = event.Timestamp
	o.mu.Unlock()
}

func (o *TelemetryObserver) handleNodeEnd(ctx context.Context, event observer.Event, success bool) {
	o.mu.Lock()
	var duration time.Duration
	if startTime, ok := o.nodeStartTime[event.NodeName]; ok {
		duration = time.Since(startTime)
		delete(o.nodeStartTime, event.NodeName)
	}
	span := o.nodeSpans[event.NodeName]
	delete(o.nodeSpans, event.NodeName)
	o.mu.Unlock()

	o.provider.RecordNodeExecution(ctx, event.NodeName, event.NodeType, duration, success)

	if span != nil {
		if event.Error != nil {
			span.RecordError(event.Error)
			span.SetStatus(codes.Error, event.Error.Error())
		} else {
			span.SetStatus(codes.Ok, "node completed successfully")
		}
		span.End()
	}
}
