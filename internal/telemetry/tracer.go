// Package telemetry sets up distributed tracing for the control plane,
// generalized from the teacher's telemetry.Tracer (telemetry/otel.go):
// one TracerProvider, exporting spans over OTLP/gRPC, with a no-op fallback
// when no collector endpoint is configured so Nexus never blocks startup on
// an absent observability backend.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the handle components use to start spans around routing and
// proxy work.
type Tracer = trace.Tracer

// Init configures the global TracerProvider. endpoint empty disables export
// entirely (spans are created but dropped) rather than failing startup —
// a control plane must still serve traffic with no tracing backend present.
func Init(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewTracer returns a named tracer off the global provider.
func NewTracer(name string) Tracer {
	return otel.Tracer(name)
}
