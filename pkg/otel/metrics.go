package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	serverMetrics     *ServerMetrics
	serverMetricsOnce sync.Once
)

// ServerMetrics holds the request instruments shared by the HTTP and
// websocket front ends. gRPC is covered by the otelgrpc stats handler.
type ServerMetrics struct {
	latency   metric.Float64Histogram
	requests  metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	errors    metric.Int64Counter
	wsClients metric.Int64UpDownCounter
}

// NewServerMetrics creates the server instruments on meter
func NewServerMetrics(meter metric.Meter) (*ServerMetrics, error) {
	latency, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("Response latency of the HTTP API"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http.server.requests.in_flight",
		metric.WithDescription("Number of HTTP requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"http.server.errors.total",
		metric.WithDescription("Total number of HTTP responses with status >= 400"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	wsClients, err := meter.Int64UpDownCounter(
		"ws.clients",
		metric.WithDescription("Number of connected websocket subscribers"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		latency:   latency,
		requests:  requests,
		inFlight:  inFlight,
		errors:    errs,
		wsClients: wsClients,
	}, nil
}

// GetServerMetrics returns the ServerMetrics singleton bound to the installed
// meter provider. It returns nil if the instruments cannot be created.
func GetServerMetrics() *ServerMetrics {
	serverMetricsOnce.Do(func() {
		m, err := NewServerMetrics(GetMeterProvider().Meter(instrumentationName))
		if err == nil {
			serverMetrics = m
		}
	})
	return serverMetrics
}

// RequestStarted marks a request as in flight
func (m *ServerMetrics) RequestStarted(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, 1, metric.WithAttributes(attribute.String("http.route", route)))
}

// RequestFinished records the outcome of a request started with RequestStarted
func (m *ServerMetrics) RequestFinished(ctx context.Context, route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	)
	m.inFlight.Add(ctx, -1, metric.WithAttributes(attribute.String("http.route", route)))
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, d.Seconds(), attrs)
	if status >= 400 {
		m.errors.Add(ctx, 1, attrs)
	}
}

// ClientConnected adjusts the websocket subscriber gauge by delta
func (m *ServerMetrics) ClientConnected(ctx context.Context, stream string, delta int64) {
	if m == nil {
		return
	}
	m.wsClients.Add(ctx, delta, metric.WithAttributes(attribute.String("ws.stream", stream)))
}
