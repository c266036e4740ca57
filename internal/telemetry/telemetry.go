// Package telemetry wires OpenTelemetry into driftdriver. It is off unless
// DRIFT_OTEL_ENABLED=true, in which case store calls are traced and counted.
//
//	DRIFT_OTEL_ENABLED=true                   turn telemetry on
//	DRIFT_OTEL_STDOUT=true                    print spans and metrics to stdout
//	DRIFT_OTEL_METRIC_INTERVAL=30s            metric export period
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=host  push metrics over OTLP/HTTP
//	OTEL_SERVICE_NAME=name                    override the service name
//
// A check or compaction run is short, so spans are exported synchronously
// and every provider is flushed by Shutdown before the process exits.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/speedrift/driftdriver"

const defaultMetricInterval = 30 * time.Second

// settings is the environment-derived telemetry configuration.
type settings struct {
	enabled        bool
	stdout         bool
	otlpEndpoint   string
	metricInterval time.Duration
	serviceName    string
}

func loadSettings(serviceName string) settings {
	s := settings{
		enabled:        os.Getenv("DRIFT_OTEL_ENABLED") == "true",
		stdout:         os.Getenv("DRIFT_OTEL_STDOUT") == "true",
		otlpEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		metricInterval: defaultMetricInterval,
		serviceName:    serviceName,
	}
	if s.otlpEndpoint == "" {
		s.otlpEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if d, err := time.ParseDuration(os.Getenv("DRIFT_OTEL_METRIC_INTERVAL")); err == nil && d > 0 {
		s.metricInterval = d
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		s.serviceName = name
	}
	return s
}

// active holds the flush hooks of the installed providers.
var active []func(context.Context) error

// Enabled reports whether DRIFT_OTEL_ENABLED turns telemetry on.
func Enabled() bool {
	return loadSettings("").enabled
}

// Init installs the global tracer and meter providers. With telemetry off it
// installs no-op providers.
func Init(ctx context.Context, serviceName, version string) error {
	s := loadSettings(serviceName)
	if !s.enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(s.serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tracerProvider, err := newTracerProvider(s, res)
	if err != nil {
		return fmt.Errorf("telemetry: tracer provider: %w", err)
	}
	meterProvider, err := newMeterProvider(ctx, s, res)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return fmt.Errorf("telemetry: meter provider: %w", err)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	active = append(active, tracerProvider.Shutdown, meterProvider.Shutdown)
	return nil
}

func newTracerProvider(s settings, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if s.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithSyncer(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, s settings, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	periodic := func(exp sdkmetric.Exporter) sdkmetric.Option {
		return sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(s.metricInterval)))
	}
	if s.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, periodic(exp))
	}
	if s.otlpEndpoint != "" {
		exp, err := newOTLPMetricExporter(ctx, s.otlpEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter for %s: %w", s.otlpEndpoint, err)
		}
		opts = append(opts, periodic(exp))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for name, or for the module scope when name is empty.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = scopeName
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, or for the module scope when name is empty.
func Meter(name string) metric.Meter {
	if name == "" {
		name = scopeName
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops every installed provider. It returns the
// joined flush errors; callers at process exit usually ignore them.
func Shutdown(ctx context.Context) error {
	var errs []error
	for _, flush := range active {
		if err := flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	active = nil
	return errors.Join(errs...)
}
