// Package otel builds the engine's OpenTelemetry providers: traces for the admin gRPC API, the
// kiosk.* metrics and the session event log stream, all exported over OTLP gRPC.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"kiosk-engine/internal/telemetry"
)

// SessionDurationBuckets are the histogram boundaries (seconds) of kiosk.session.duration: a quick
// card lookup takes under a minute, a full design session tens of minutes, and the reaper closes
// anything left open at the reap ceiling.
var SessionDurationBuckets = []float64{15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200}

const defaultMetricInterval = 10 * time.Second

// Options configures the providers.
type Options struct {
	// Endpoint is the OTLP gRPC collector, as host:port or a URL whose path is ignored.
	// Empty builds providers that record in process but export nothing.
	Endpoint string
	// Insecure forces plaintext even for https endpoints (OTEL_EXPORTER_OTLP_INSECURE).
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	// Environment is recorded as deployment.environment.name (APP_ENV).
	Environment string
	// InstanceID distinguishes replicas; defaults to the hostname.
	InstanceID     string
	MetricInterval time.Duration
}

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// NewResource describes this engine replica.
func NewResource(opts Options) (*resource.Resource, error) {
	instance := opts.InstanceID
	if instance == "" {
		if h, err := os.Hostname(); err == nil {
			instance = h
		}
	}
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(opts.ServiceVersion))
	}
	if instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(instance))
	}
	if opts.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", opts.Environment))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// meterOptions are shared by every MeterProvider the engine builds.
func meterOptions(res *resource.Resource, readers ...metric.Reader) []metric.Option {
	opts := []metric.Option{
		metric.WithResource(res),
		metric.WithView(metric.NewView(
			metric.Instrument{Name: telemetry.SessionDurationMetric},
			metric.Stream{Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: SessionDurationBuckets}},
		)),
	}
	for _, r := range readers {
		opts = append(opts, metric.WithReader(r))
	}
	return opts
}

// collectorTarget normalizes endpoint to the host:port dialed by the exporters and reports
// whether the connection is plaintext.
func collectorTarget(endpoint string, insecureOverride bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, insecureOverride || u.Scheme != "https", nil
}

// NewProviders creates the tracer, meter and logger providers. With an empty endpoint the providers
// carry the resource and metric views but no exporters, and Shutdown is a no-op.
func NewProviders(ctx context.Context, opts Options) (*Providers, error) {
	res, err := NewResource(opts)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  metric.NewMeterProvider(meterOptions(res)...),
			LoggerProvider: sdklog.NewLoggerProvider(sdklog.WithResource(res)),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}
	target, insecure, err := collectorTarget(endpoint, opts.Insecure)
	if err != nil {
		return nil, err
	}

	var shutdownFns []func(context.Context) error
	abort := func(err error) (*Providers, error) {
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			_ = shutdownFns[i](ctx)
		}
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return abort(fmt.Errorf("trace exporter: %w", err))
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	shutdownFns = append(shutdownFns, tp.Shutdown)

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return abort(fmt.Errorf("metric exporter: %w", err))
	}
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	mp := metric.NewMeterProvider(meterOptions(res, metric.NewPeriodicReader(metricExp, metric.WithInterval(interval)))...)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	// Session events go out on the log pipeline (see NewEventEmitter).
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return abort(fmt.Errorf("log exporter: %w", err))
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))
	shutdownFns = append(shutdownFns, lp.Shutdown)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Shutdown: func(ctx context.Context) error {
			var errs []error
			for i := len(shutdownFns) - 1; i >= 0; i-- {
				if err := shutdownFns[i](ctx); err != nil {
					errs = append(errs, fmt.Errorf("telemetry: shutdown: %w", err))
				}
			}
			return errors.Join(errs...)
		},
	}, nil
}

// SetGlobal installs the tracer and meter providers for otelgrpc. The logger provider is passed
// explicitly to the session event emitter instead.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
