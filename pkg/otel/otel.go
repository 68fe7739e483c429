package otel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "github.com/erain9/matchbook/pkg/otel"

	ServiceGateway        = "matchbook-gateway"
	ServiceMatchingEngine = "matchbook-engine"
)

var (
	tracersMu              sync.RWMutex
	gatewayTracer          trace.Tracer
	matchingEngineTracer   trace.Tracer
	gatewayTracerProvider  *sdktrace.TracerProvider
	matchingTracerProvider *sdktrace.TracerProvider
	meterProvider          *sdkmetric.MeterProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceVersion   string
	Endpoint         string
	ConnectTimeout   time.Duration
	CollectorEnabled bool
}

// Init wires OTLP trace and metric exporters for the gateway and engine
// services. With the collector disabled it installs nothing and the
// instrumentation falls back to no-op tracers. The returned function flushes
// and shuts down whatever was started.
func Init(cfg Config) (func(), error) {
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "0.1.0"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	var cleanup []func()
	shutdown := func(name string, fn func(context.Context) error) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("provider", name).Msg("Error shutting down telemetry provider")
			}
		}
	}

	if cfg.CollectorEnabled {
		gatewayResource := initResource(ServiceGateway, cfg.ServiceVersion)
		engineResource := initResource(ServiceMatchingEngine, cfg.ServiceVersion)

		gatewayTP, err := initTracerProvider(cfg, gatewayResource)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize gateway tracer provider")
		} else {
			cleanup = append(cleanup, shutdown(ServiceGateway, gatewayTP.Shutdown))
		}

		engineTP, err := initTracerProvider(cfg, engineResource)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize engine tracer provider")
		} else {
			cleanup = append(cleanup, shutdown(ServiceMatchingEngine, engineTP.Shutdown))
		}

		mp, err := initMeterProvider(cfg, engineResource)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize meter provider, continuing without metrics")
		} else {
			meterProvider = mp
			cleanup = append(cleanup, shutdown("meter", mp.Shutdown))
		}

		tracersMu.Lock()
		gatewayTracerProvider, matchingTracerProvider = gatewayTP, engineTP
		if gatewayTP != nil {
			gatewayTracer = gatewayTP.Tracer(ServiceGateway)
		}
		if engineTP != nil {
			matchingEngineTracer = engineTP.Tracer(ServiceMatchingEngine)
		}
		tracersMu.Unlock()
	}

	return func() {
		for _, fn := range cleanup {
			fn()
		}
	}, nil
}

func initResource(serviceName, serviceVersion string) *sdkresource.Resource {
	extraResources, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create telemetry resource")
		return sdkresource.Default()
	}

	resource, err := sdkresource.Merge(sdkresource.Default(), extraResources)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to merge telemetry resources")
		return sdkresource.Default()
	}
	return resource
}

func collectorConn(cfg Config) (*grpc.ClientConn, error) {
	return grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func initTracerProvider(cfg Config, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	conn, err := collectorConn(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)
	return tp, nil
}

func initMeterProvider(cfg Config, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	conn, err := collectorConn(cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(5*time.Second))),
		sdkmetric.WithResource(resource),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// GetGatewayTracer returns the tracer for the request-facing servers
func GetGatewayTracer() trace.Tracer {
	tracersMu.RLock()
	defer tracersMu.RUnlock()
	return gatewayTracer
}

// GetMatchingEngineTracer returns the tracer for the matching engine
func GetMatchingEngineTracer() trace.Tracer {
	tracersMu.RLock()
	defer tracersMu.RUnlock()
	return matchingEngineTracer
}

// GetTracerProvider returns the tracer provider for serviceName, falling back
// to the global one
func GetTracerProvider(serviceName string) trace.TracerProvider {
	tracersMu.RLock()
	defer tracersMu.RUnlock()
	switch serviceName {
	case ServiceGateway:
		if gatewayTracerProvider != nil {
			return gatewayTracerProvider
		}
	case ServiceMatchingEngine:
		if matchingTracerProvider != nil {
			return matchingTracerProvider
		}
	}
	return otel.GetTracerProvider()
}

// GetMeterProvider returns the meter provider installed by Init, or the global one
func GetMeterProvider() metric.MeterProvider {
	if meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return meterProvider
}

// ResetForTesting clears the tracers installed by Init or InitForTesting
func ResetForTesting() {
	tracersMu.Lock()
	defer tracersMu.Unlock()
	gatewayTracer = nil
	matchingEngineTracer = nil
	gatewayTracerProvider = nil
	matchingTracerProvider = nil
}

// InitForTesting routes every span to tracer
func InitForTesting(tracer trace.Tracer) error {
	tracersMu.Lock()
	defer tracersMu.Unlock()
	gatewayTracer = tracer
	matchingEngineTracer = tracer
	return nil
}
