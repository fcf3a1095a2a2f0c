package otelx

import (
	"context"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceNamespace groups every clinicops service in trace backends.
const ServiceNamespace = "clinicops"

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP gRPC collector as host:port.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// ConfigFromEnv reads the OTEL_* keys. Tracing is on only when a collector
// endpoint is configured, unless OTEL_ENABLED says otherwise.
func ConfigFromEnv(serviceName string) Config {
	endpoint := config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	return Config{
		Enabled:        config.Bool("OTEL_ENABLED", endpoint != "") && endpoint != "",
		ServiceName:    serviceName,
		ServiceVersion: config.String("SERVICE_VERSION", "dev"),
		Environment:    config.String("DEPLOY_ENV", "local"),
		Endpoint:       endpoint,
		Insecure:       config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio:    sampleRatio(config.String("OTEL_SAMPLING_RATIO", "")),
	}
}

// sampleRatio parses a ratio in [0,1]; anything else samples everything.
func sampleRatio(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 1
	}
	return f
}

func (c Config) resourceAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.DeploymentEnvironment(c.Environment),
	}
}

// Setup installs the W3C propagators and, when enabled, a batching tracer
// provider exporting over OTLP gRPC. The returned func flushes and stops it.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(3 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(cfg.resourceAttributes()...),
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
