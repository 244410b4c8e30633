package di

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracingObserver emits one span per component construction.
type TracingObserver struct {
	tracer trace.Tracer
}

// NewTracingObserver wraps a tracer.
func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{tracer: tracer}
}

// OnResolve records a construction as a completed span; the span covers
// the elapsed build time.
func (t *TracingObserver) OnResolve(key Key, elapsed time.Duration) {
	end := time.Now()
	_, span := t.tracer.Start(context.Background(), "loom.resolve",
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attribute.String("loom.key", key.String()),
		),
	)
	span.End(trace.WithTimestamp(end))
}

// OnCacheHit records a cache-served resolution as a zero-length span.
func (t *TracingObserver) OnCacheHit(key Key) {
	now := time.Now()
	_, span := t.tracer.Start(context.Background(), "loom.cache_hit",
		trace.WithTimestamp(now),
		trace.WithAttributes(
			attribute.String("loom.key", key.String()),
		),
	)
	span.End(trace.WithTimestamp(now))
}
