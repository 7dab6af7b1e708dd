// Package telemetry wires OpenTelemetry metrics and traces for a run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var ErrUnknownExporter = errors.New("unknown exporter")

// Config selects the exporters. "none" disables a signal.
type Config struct {
	ServiceName string
	Metrics     string // none | stdout | prometheus
	Traces      string // none | stdout
	// Textfile receives the prometheus registry on shutdown, in the
	// node-exporter textfile format. Only used with Metrics == "prometheus".
	Textfile string
	// Writer receives stdout exporter output; nil means os.Stderr so it
	// stays out of the way of CLI output.
	Writer io.Writer
}

// Init installs the global tracer and meter providers. The returned
// shutdown flushes both and must be called before exit.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, errors.New("telemetry: nil context")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "argstates"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName))

	if cfg.Traces != "" && cfg.Traces != "none" {
		tp, err := initTracer(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.Metrics != "" && cfg.Metrics != "none" {
		mp, flush, err := initMeter(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		// Write the textfile while the provider can still be collected.
		if flush != nil {
			shutdownFuncs = append(shutdownFuncs, flush)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	switch cfg.Traces {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Traces)
	}
}

func initMeter(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, func(context.Context) error, error) {
	switch cfg.Metrics {
	case "prometheus":
		reg := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))

		var flush func(context.Context) error
		if cfg.Textfile != "" {
			flush = func(context.Context) error {
				return prometheus.WriteToTextfile(cfg.Textfile, reg)
			}
		}
		return mp, flush, nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Metrics)
	}
}

// Instruments are the driver's metrics.
type Instruments struct {
	Invocations   metric.Int64Counter     // by outcome
	Duration      metric.Float64Histogram // seconds per child process
	EmptyIncludes metric.Int64Counter     // groups that resolved no system includes
}

// NewInstruments registers the driver's instruments on meter. A nil meter
// uses the global provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter("argstates/driver")
	}

	invocations, err := meter.Int64Counter("argstates_invocations",
		metric.WithDescription("Plugin invocations by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("argstates_invocation_duration",
		metric.WithDescription("Wall time of one compiler invocation"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	empty, err := meter.Int64Counter("argstates_include_resolution_empty",
		metric.WithDescription("Directory groups whose system include probe found nothing"))
	if err != nil {
		return nil, err
	}

	return &Instruments{Invocations: invocations, Duration: duration, EmptyIncludes: empty}, nil
}
