package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/mrv/internal/config"
)

const instrumentationName = "github.com/JaimeStill/mrv"

// Telemetry holds the tracer and meter handed to domain systems. Disabled
// signals fall back to no-op implementations.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	// Metrics serves the Prometheus exposition, or 404 when metrics are off.
	Metrics http.Handler

	shutdown []func(context.Context) error
}

// NewTelemetry installs the configured trace and metric providers.
func NewTelemetry(cfg *config.TelemetryConfig, version string) (*Telemetry, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version),
	)

	t := &Telemetry{
		Tracer:  tracenoop.NewTracerProvider().Tracer(instrumentationName),
		Meter:   metricnoop.NewMeterProvider().Meter(instrumentationName),
		Metrics: http.NotFoundHandler(),
	}

	if cfg.TracingEnabled() {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Ratio()))),
		)
		t.Tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(version))
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}

	if cfg.MetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		t.Meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(version))
		t.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}

	return t, nil
}

// Shutdown flushes and stops the installed providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
