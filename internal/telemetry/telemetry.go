// Package telemetry wires the runtime's OpenTelemetry tracer provider.
//
// Every HTTP dispatch the Map Interpreter makes opens a span under the
// tracer this package configures, tagged with the profile, use-case and
// provider; observers hook in through spans, not a bespoke event bus.
// Bind opens no span; it writes a "binding" log entry instead.
package telemetry

import (
	"context"
	"fmt"

	"github.com/mapruntime/client/internal/config"
	"github.com/mapruntime/client/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init sets up OpenTelemetry tracing with an OTLP gRPC exporter and
// returns a tracer plus a shutdown function. Unlike the teacher's
// version this never calls otel.SetTracerProvider globally: bound
// contexts hold their own tracer so concurrent binds with different
// telemetry configs (or tests) never clash over global state.
func Init(cfg config.TelemetryConfig, log logging.Logger) (trace.Tracer, func(context.Context) error, error) {
	if log == nil {
		log = logging.Nop
	}
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		log("telemetry", "opentelemetry disabled", nil)
		return otel.Tracer("mapruntime/noop"), func(ctx context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	// Create OTLP gRPC exporter
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // local dev; production should use TLS via OTEL_EXPORTER_OTLP_CERTIFICATE
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", "0.1.0"),
		),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	log("telemetry", "opentelemetry tracing initialized", map[string]any{
		"endpoint": cfg.OTLPEndpoint,
		"service":  cfg.ServiceName,
	})

	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}

// Propagator returns the composite W3C trace-context + baggage propagator
// used when a bound context needs to inject/extract headers across an
// HTTP dispatch boundary.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
