package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads engine events back from the topic
type Consumer struct {
	reader messageReader
}

// NewConsumer creates a consumer in groupID reading topic
func NewConsumer(brokerAddr, topic, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})}
}

// Consume calls handler for every event until ctx is done. A message is
// committed only after handler succeeds; undecodable messages are skipped.
func (c *Consumer) Consume(ctx context.Context, handler func(*api.Event) error) error {
	logger := zerolog.Ctx(ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		event, err := messaging.Decode(msg.Value)
		if err != nil {
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
		} else if err := handler(event); err != nil {
			return fmt.Errorf("event handler failed: %w", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}
	}
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// SetupConsumer starts a consumer that logs every event it reads. It is a
// developer aid for watching the topic next to the server.
func SetupConsumer(ctx context.Context, logger zerolog.Logger, brokerAddr, topic string) *Consumer {
	consumer := NewConsumer(brokerAddr, topic, "matchbook-event-logger")
	go func() {
		logger.Info().Str("topic", topic).Msg("Starting Kafka event logger")
		err := consumer.Consume(logger.WithContext(ctx), func(ev *api.Event) error {
			logger.Info().
				Str("symbol", ev.Symbol).
				Uint64("sequence", ev.Sequence).
				Str("kind", ev.Kind).
				Str("order_id", ev.OrderID).
				Int("trades", len(ev.Trades)).
				Msg("Received event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()
	return consumer
}
