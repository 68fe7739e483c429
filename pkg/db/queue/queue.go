// Package queue publishes engine events to Kafka through a pool of sarama
// synchronous producers.
package queue

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/messaging"
)

const maxRetry = 5

// newSyncProducer is replaced in tests
var newSyncProducer = sarama.NewSyncProducer

// QueueMessageSender implements messaging.MessageSender with a sarama
// SyncProducer. It is not safe for concurrent use; share it through a
// SenderPool.
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// producerConfig waits for the partition leader and hashes the symbol key so
// each book's events stay on one partition
func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// NewQueueMessageSender connects a producer to brokers
func NewQueueMessageSender(brokers []string, topic string) (*QueueMessageSender, error) {
	producer, err := newSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &QueueMessageSender{producer: producer, topic: topic}, nil
}

// SendEvent sends one event and waits for the broker acknowledgement
func (q *QueueMessageSender) SendEvent(_ context.Context, event *api.Event) error {
	data, err := messaging.Encode(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.ByteEncoder(messaging.Key(event)),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)
