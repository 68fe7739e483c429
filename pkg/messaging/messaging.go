package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
)

// MessageSender delivers committed engine events to a queue. It decouples
// the engine from the concrete Kafka clients.
type MessageSender interface {
	SendEvent(ctx context.Context, event *api.Event) error
	Close() error
}

// Publisher adapts a MessageSender to core.Publisher
type Publisher struct {
	sender MessageSender
}

// NewPublisher wraps sender
func NewPublisher(sender MessageSender) *Publisher {
	return &Publisher{sender: sender}
}

// Publish implements core.Publisher
func (p *Publisher) Publish(ctx context.Context, event core.Event) error {
	msg := api.FromEvent(event)
	return p.sender.SendEvent(ctx, &msg)
}

// Close closes the underlying sender
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// Key is the partition key of an event. Keying by symbol keeps each book's
// events on one partition, in commit order.
func Key(event *api.Event) []byte {
	return []byte(event.Symbol)
}

// Encode serializes an event for the queue
func Encode(event *api.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Decode parses an event read from the queue
func Decode(data []byte) (*api.Event, error) {
	var event api.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

var _ core.Publisher = (*Publisher)(nil)
