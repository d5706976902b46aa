// Package telemetry bootstraps OpenTelemetry tracing for the service.
//
// The library packages depend only on the otel API (the OTel emitter in
// graph/emit takes a trace.Tracer); this package owns the SDK side:
// exporter selection, resource attributes, sampling and shutdown. Only
// the cmd layer should import it.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the exporter and identifies the service.
type Config struct {
	// ServiceName appears as service.name on every span.
	ServiceName string

	// ServiceVersion appears as service.version.
	ServiceVersion string

	// Environment tags spans with deployment.environment.
	Environment string

	// OTLPEndpoint is the OTLP gRPC collector address, e.g.
	// "localhost:4317". Empty selects the stdout exporter instead
	// (development mode).
	OTLPEndpoint string

	// SampleRate is the trace sampling ratio in [0, 1]. Zero means
	// sample everything (the development default).
	SampleRate float64
}

// Init builds and installs a global TracerProvider per the config and
// returns its shutdown function. Call the shutdown function during
// service drain to flush pending spans.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentgraph"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1.0
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating stdout exporter: %w", err)
		}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

// Tracer returns a tracer from the globally installed provider.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/agentgraph-go/agentgraph")
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		))
	}
	return resource.New(ctx, attrs...)
}
