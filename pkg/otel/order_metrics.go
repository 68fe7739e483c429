package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersSubmitted = "orderbook.orders.submitted"
	MetricOrdersRejected  = "orderbook.orders.rejected"
	MetricOrdersCanceled  = "orderbook.orders.canceled"
	MetricTradesExecuted  = "orderbook.trades.executed"
	MetricOrdersTriggered = "orderbook.orders.triggered"
	MetricPublishFailures = "orderbook.publish.failures"
	MetricMatchDuration   = "orderbook.match.duration"
)

var (
	// orderBookMetrics holds the singleton instance
	orderBookMetrics     *OrderBookMetrics
	orderBookMetricsOnce sync.Once
)

// OrderBookMetrics holds metrics for order book operations. A nil receiver
// records nothing.
type OrderBookMetrics struct {
	submitted       metric.Int64Counter
	rejected        metric.Int64Counter
	canceled        metric.Int64Counter
	trades          metric.Int64Counter
	triggered       metric.Int64Counter
	publishFailures metric.Int64Counter
	matchDuration   metric.Float64Histogram
}

// NewOrderBookMetrics creates the order book instruments on meter
func NewOrderBookMetrics(meter metric.Meter) (*OrderBookMetrics, error) {
	m := &OrderBookMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.submitted, MetricOrdersSubmitted, "Total number of orders accepted by the engine", "{order}"},
		{&m.rejected, MetricOrdersRejected, "Total number of orders rejected at admission", "{order}"},
		{&m.canceled, MetricOrdersCanceled, "Total number of explicit cancellations", "{order}"},
		{&m.trades, MetricTradesExecuted, "Total number of trades executed", "{trade}"},
		{&m.triggered, MetricOrdersTriggered, "Total number of latent orders activated", "{order}"},
		{&m.publishFailures, MetricPublishFailures, "Total number of market data events that failed to publish", "{event}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	m.matchDuration, err = meter.Float64Histogram(
		MetricMatchDuration,
		metric.WithDescription("Time spent processing one submission under the book lock"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton bound to the
// global meter provider
func GetOrderBookMetrics() *OrderBookMetrics {
	orderBookMetricsOnce.Do(func() {
		m, err := NewOrderBookMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		if err != nil {
			return
		}
		orderBookMetrics = m
	})
	return orderBookMetrics
}

// RecordMatchDuration records how long one submission held the book
func (m *OrderBookMetrics) RecordMatchDuration(ctx context.Context, symbol, orderType string, d time.Duration) {
	if m == nil {
		return
	}
	m.matchDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
		attribute.String(AttributeOrderType, orderType),
	))
}

// RecordSubmitted increments the accepted orders counter
func (m *OrderBookMetrics) RecordSubmitted(ctx context.Context, symbol, orderType, status string) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
		attribute.String(AttributeOrderType, orderType),
		attribute.String(AttributeOrderStatus, status),
	))
}

// RecordTrades adds n executed trades
func (m *OrderBookMetrics) RecordTrades(ctx context.Context, symbol string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.trades.Add(ctx, n, metric.WithAttributes(attribute.String(AttributeSymbol, symbol)))
}

// RecordTriggered adds n activated latent orders
func (m *OrderBookMetrics) RecordTriggered(ctx context.Context, symbol string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.triggered.Add(ctx, n, metric.WithAttributes(attribute.String(AttributeSymbol, symbol)))
}

// RecordRejected increments the rejected orders counter
func (m *OrderBookMetrics) RecordRejected(ctx context.Context, symbol, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttributeSymbol, symbol),
		attribute.String("reject.reason", reason),
	))
}

// RecordCanceled increments the cancellation counter
func (m *OrderBookMetrics) RecordCanceled(ctx context.Context, symbol string) {
	if m == nil {
		return
	}
	m.canceled.Add(ctx, 1, metric.WithAttributes(attribute.String(AttributeSymbol, symbol)))
}

// RecordPublishFailure increments the publish failure counter
func (m *OrderBookMetrics) RecordPublishFailure(ctx context.Context, symbol string) {
	if m == nil {
		return
	}
	m.publishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttributeSymbol, symbol)))
}
