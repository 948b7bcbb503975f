// Package telemetry configures OpenTelemetry tracing. Spans are exported
// over OTLP/HTTP when an endpoint is configured and dropped otherwise.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures tracing.
type Config struct {
	// Endpoint is the host:port of an OTLP/HTTP collector. Empty disables
	// export.
	Endpoint string
	Insecure bool

	ServiceName    string
	ServiceVersion string
}

// Provider owns the tracer provider installed by Setup.
type Provider struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// Setup builds a tracer provider for cfg and installs it as the global
// provider. Call Shutdown to flush pending spans.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		p := &Provider{
			provider: noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}
		otel.SetTracerProvider(p.provider)
		return p, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "resticd"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{provider: tp, shutdown: tp.Shutdown}, nil
}

// TracerProvider returns the installed provider.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.provider }

// Tracer returns a named tracer from the installed provider.
func (p *Provider) Tracer(name string) trace.Tracer { return p.provider.Tracer(name) }

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool {
	_, ok := p.provider.(*sdktrace.TracerProvider)
	return ok
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}
