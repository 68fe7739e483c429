package core

import (
	"context"
	"errors"
)

// EventKind tells subscribers what produced an event
type EventKind string

// Event kinds
const (
	EventSubmit EventKind = "submit"
	EventCancel EventKind = "cancel"
)

// Event is published once per committed submission or cancellation. Trades
// are in execution order and Snapshot reflects the state after the whole
// unit of work, trigger cascades included.
type Event struct {
	Kind     EventKind
	Symbol   string
	Sequence uint64
	OrderID  string
	Trades   []Trade
	Snapshot *MarketSnapshot
}

// Publisher receives committed events. Publish is called outside the book
// lock, one event at a time per engine, in commit order.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish implements Publisher
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MultiPublisher fans an event out to every publisher and joins their errors
type MultiPublisher []Publisher

// Publish implements Publisher
func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
