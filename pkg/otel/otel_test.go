package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartOrderSpanWithoutTracer(t *testing.T) {
	ResetForTesting()

	ctx, span := StartOrderSpan(context.Background(), SpanProcessOrder)
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	AddAttributes(span, attribute.String(AttributeOrderID, "x"))
	span.End()
}

func TestStartOrderSpanRecords(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, InitForTesting(provider.Tracer("test")))
	defer ResetForTesting()

	ctx, parent := StartOrderSpan(context.Background(), SpanSubmitOrder, attribute.String(AttributeSymbol, "BTC-USDT"))
	_, child := StartOrderSpan(ctx, SpanMatchOrder)
	AddAttributes(child, attribute.Int(AttributeTradeCount, 2))
	child.End()
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, SpanMatchOrder, spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Contains(t, spans[0].Attributes(), attribute.Int(AttributeTradeCount, 2))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *OrderBookMetrics
	ctx := context.Background()
	m.RecordSubmitted(ctx, "S", "LIMIT", "resting")
	m.RecordRejected(ctx, "S", "invalid")
	m.RecordMatchDuration(ctx, "S", "LIMIT", time.Millisecond)

	var s *ServerMetrics
	s.RequestStarted(ctx, "/orders")
	s.RequestFinished(ctx, "/orders", "POST", 200, time.Millisecond)
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestOrderBookMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewOrderBookMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSubmitted(ctx, "S", "LIMIT", "filled")
	m.RecordTrades(ctx, "S", 3)
	m.RecordTrades(ctx, "S", 0)
	m.RecordTriggered(ctx, "S", 1)
	m.RecordCanceled(ctx, "S")
	m.RecordPublishFailure(ctx, "S")

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums[MetricOrdersSubmitted])
	assert.Equal(t, int64(3), sums[MetricTradesExecuted])
	assert.Equal(t, int64(1), sums[MetricOrdersTriggered])
	assert.Equal(t, int64(1), sums[MetricOrdersCanceled])
	assert.Equal(t, int64(1), sums[MetricPublishFailures])
}

func TestServerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewServerMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RequestStarted(ctx, "/orders")
	m.RequestFinished(ctx, "/orders", "POST", 409, 2*time.Millisecond)
	m.ClientConnected(ctx, "trades", 1)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["http.server.requests.total"])
	assert.Equal(t, int64(1), sums["http.server.errors.total"])
	assert.Equal(t, int64(0), sums["http.server.requests.in_flight"])
	assert.Equal(t, int64(1), sums["ws.clients"])
}
