package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StoredTraceContext is the W3C trace context persisted next to an outbox row so
// the publisher can continue the trace of the request that wrote it.
type StoredTraceContext struct {
	Traceparent string
	Tracestate  string
}

// CaptureTraceContext snapshots the active span context of ctx.
func CaptureTraceContext(ctx context.Context) StoredTraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTraceContext{
		Traceparent: carrier.Get("traceparent"),
		Tracestate:  carrier.Get("tracestate"),
	}
}

// Empty reports whether nothing was captured, e.g. when tracing is disabled.
func (s StoredTraceContext) Empty() bool {
	return s.Traceparent == ""
}

// Restore returns ctx carrying the stored span context as its remote parent.
// An empty snapshot returns ctx unchanged.
func (s StoredTraceContext) Restore(ctx context.Context) context.Context {
	if s.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": s.Traceparent}
	if s.Tracestate != "" {
		carrier["tracestate"] = s.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
