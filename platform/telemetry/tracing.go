// Package telemetry configures OpenTelemetry tracing.
// This is part of the platform layer and contains no business logic.
package telemetry

import (
	"context"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "leadflow_backend"

// Init installs a global tracer provider exporting over OTLP/HTTP and returns
// its shutdown func. Without an endpoint tracing stays a no-op.
func Init(ctx context.Context, cfg config.TelemetryConfig, log *logger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if cfg.GetOTLPEndpoint() == "" {
		log.Info("tracing disabled", "reason", "OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return noop
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.GetOTLPEndpoint()),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn("tracing exporter init failed", "error", err)
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", cfg.GetServiceName())))
	if err != nil {
		log.Warn("tracing resource init failed", "error", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the shared tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start opens a span named name with optional attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
