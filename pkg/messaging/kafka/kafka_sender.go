package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/messaging"
	"github.com/erain9/matchbook/pkg/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sendTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the sender uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageSender implements MessageSender using kafka-go
type KafkaMessageSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaMessageSender creates a new Kafka message sender. Events are keyed
// by symbol and hashed to a partition so each book stays ordered.
func NewKafkaMessageSender(brokerAddr, topic string) (*KafkaMessageSender, error) {
	if brokerAddr == "" || topic == "" {
		return nil, fmt.Errorf("kafka broker address and topic are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerAddr),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newSender(writer, topic), nil
}

func newSender(w messageWriter, topic string) *KafkaMessageSender {
	return &KafkaMessageSender{writer: w, topic: topic}
}

// SendEvent writes one event to the topic
func (k *KafkaMessageSender) SendEvent(ctx context.Context, event *api.Event) error {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanSendToKafka,
		attribute.String(otel.AttributeSymbol, event.Symbol),
		attribute.Int64(otel.AttributeSequence, int64(event.Sequence)),
	)
	defer span.End()

	data, err := messaging.Encode(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   messaging.Key(event),
		Value: data,
		Time:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka write failed")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaMessageSender) Close() error {
	return k.writer.Close()
}

var _ messaging.MessageSender = (*KafkaMessageSender)(nil)
