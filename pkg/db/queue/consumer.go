package queue

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/messaging"
	"github.com/rs/zerolog/log"
)

// newConsumer is replaced in tests
var newConsumer = sarama.NewConsumer

// QueueMessageConsumer reads engine events from every partition of a topic
type QueueMessageConsumer struct {
	consumer sarama.Consumer
	topic    string
	done     chan struct{}
	once     sync.Once
}

// NewQueueMessageConsumer connects a consumer to brokers
func NewQueueMessageConsumer(brokers []string, topic string) (*QueueMessageConsumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	consumer, err := newConsumer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &QueueMessageConsumer{consumer: consumer, topic: topic, done: make(chan struct{})}, nil
}

// ConsumeEvents delivers newly produced events to handler until Close is
// called. Events within a partition arrive in order; partitions are merged.
func (c *QueueMessageConsumer) ConsumeEvents(handler func(*api.Event) error) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	messages := make(chan *sarama.ConsumerMessage)
	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, partition, sarama.OffsetNewest)
		if err != nil {
			c.Close()
			wg.Wait()
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pc.AsyncClose()
			errs := pc.Errors()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case messages <- msg:
					case <-c.done:
						return
					}
				case cerr, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					log.Warn().Err(cerr).Int32("partition", partition).Msg("Kafka partition error")
				case <-c.done:
					return
				}
			}
		}()
	}
	defer wg.Wait()

	for {
		select {
		case msg := <-messages:
			event, err := messaging.Decode(msg.Value)
			if err != nil {
				log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable event")
				continue
			}
			if err := handler(event); err != nil {
				c.Close()
				return err
			}
		case <-c.done:
			return nil
		}
	}
}

// Close stops consumption and closes the underlying consumer
func (c *QueueMessageConsumer) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.consumer.Close()
	})
	return err
}
