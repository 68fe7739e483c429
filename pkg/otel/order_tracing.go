package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Span names
	SpanSubmitOrder  = "submit_order"
	SpanProcessOrder = "process_order"
	SpanMatchOrder   = "match_order"
	SpanTriggerScan  = "trigger_scan"
	SpanCancelOrder  = "cancel_order"
	SpanPublishEvent = "publish_event"
	SpanSendToKafka  = "send_to_kafka"

	// Attribute keys
	AttributeSymbol            = "book.symbol"
	AttributeSequence          = "book.sequence"
	AttributeOrderID           = "order.id"
	AttributeOrderSide         = "order.side"
	AttributeOrderType         = "order.type"
	AttributeOrderQuantity     = "order.quantity"
	AttributeOrderPrice        = "order.price"
	AttributeOrderStatus       = "order.status"
	AttributeExecutedQuantity  = "order.executed_quantity"
	AttributeRemainingQuantity = "order.remaining_quantity"
	AttributeTradeCount        = "trade.count"
	AttributeTriggerPending    = "trigger.pending"
	AttributeActivatedCount    = "trigger.activated"
)

var noopTracer = noop.NewTracerProvider().Tracer(instrumentationName)

// StartOrderSpan starts a new span for order processing. Without an
// initialized tracer the returned span is a no-op, never nil.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	switch name {
	case SpanSubmitOrder:
		tracer = GetGatewayTracer()
	case SpanProcessOrder, SpanMatchOrder, SpanTriggerScan, SpanCancelOrder, SpanPublishEvent, SpanSendToKafka:
		tracer = GetMatchingEngineTracer()
	default:
		tracer = GetGatewayTracer()
	}

	if tracer == nil {
		tracer = noopTracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
