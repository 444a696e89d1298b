// Package otel wires OpenTelemetry into the provisioning service: provider
// setup, tracing decorators around the ports, provisioning metrics and
// instrumented database handles.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/multierr"
)

const instrumentationName = "github.com/neomorfeo/tenantprov/internal/adapter/otel"

// Exporter names accepted in Config.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

// Config holds OpenTelemetry provider configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       string // stdout, otlp or none
	Insecure       bool   // plain HTTP for OTLP
}

// Providers holds initialized OTel providers and their shutdown function.
type Providers struct {
	Shutdown func(ctx context.Context) error
}

// Setup initializes TracerProvider and MeterProvider based on Config and
// registers them globally. Shutdown must be called on exit to flush
// pending telemetry. The "none" exporter leaves the global no-op
// providers in place.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.Exporter == ExporterNone {
		return &Providers{Shutdown: func(context.Context) error { return nil }}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("creating tracer provider: %w", err)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return nil, multierr.Append(
			fmt.Errorf("creating meter provider: %w", err),
			tp.Shutdown(ctx),
		)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		var err error
		if terr := tp.Shutdown(ctx); terr != nil {
			err = multierr.Append(err, fmt.Errorf("tracer shutdown: %w", terr))
		}
		if merr := mp.Shutdown(ctx); merr != nil {
			err = multierr.Append(err, fmt.Errorf("meter shutdown: %w", merr))
		}
		return err
	}

	return &Providers{Shutdown: shutdown}, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.Exporter {
	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (use stdout, otlp or none)", cfg.Exporter)
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	var exporter metric.Exporter
	var err error

	switch cfg.Exporter {
	case ExporterOTLP:
		var opts []otlpmetrichttp.Option
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdoutmetric.New()
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (use stdout, otlp or none)", cfg.Exporter)
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	), nil
}
