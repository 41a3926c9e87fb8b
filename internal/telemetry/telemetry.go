// Package telemetry wires OpenTelemetry tracing and metrics for the
// Orchestrator's phases, architecture loop, and verification pipeline.
// Grounded on telemetry/otel.go's provider shape (batch span exporter +
// periodic metric reader behind a single setup call, idempotent
// shutdown) and resilience/metrics_otel.go's pattern of recording
// domain events as named counters/histograms with attribute tags,
// narrowed to an OTLP/gRPC trace exporter (the teacher's module also
// ships an HTTP exporter; this one's go.mod only carries the gRPC
// variant) with a stdout fallback for local runs with no collector, and
// with a manual metric reader in place of the periodic one.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process-wide tracer/meter providers and their
// instrument cache. One Provider is created at startup (cmd/graphmind)
// and registered as the global otel tracer/meter provider; it is not
// passed to the Orchestrator.
type Provider struct {
	tracer trace.Tracer

	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	instruments    *Instruments

	shutdownOnce sync.Once
}

// New sets up tracing + metrics for serviceName. If endpoint is empty,
// spans are written to stdout instead of exported via OTLP — useful for
// local development without a collector running.
func New(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name required")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp, err := newTracerProvider(res, endpoint)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:         tp.Tracer("graphmind"),
		traceProvider:  tp,
		metricProvider: mp,
		instruments:    newInstruments(mp.Meter("graphmind")),
	}, nil
}

func newTracerProvider(res *resource.Resource, endpoint string) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
			endpoint = v
		}
	}
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlp exporter for %s: %w", endpoint, err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Tracer returns the shared tracer for starting spans around a phase,
// loop cycle, or pipeline stage.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Instruments returns the shared metric instrument cache.
func (p *Provider) Instruments() *Instruments { return p.instruments }

// Shutdown flushes and releases the trace/metric providers. Safe to
// call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		var errs []error
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
		if err := p.metricProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric provider: %w", err))
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return shutdownErr
}
