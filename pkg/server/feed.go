package server

import (
	"context"
	"sync"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
)

// DefaultFeedBuffer is the queue length of a feed subscription
const DefaultFeedBuffer = 1024

// Feed fans committed events out to in-process subscribers such as gRPC
// market data streams. A subscriber whose queue is full is dropped and its
// channel closed.
type Feed struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch chan *api.Event
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: DefaultFeedBuffer,
	}
}

// Subscribe follows the events of symbol. The returned function ends the
// subscription; it is safe to call more than once.
func (f *Feed) Subscribe(symbol string) (<-chan *api.Event, func()) {
	s := &subscription{ch: make(chan *api.Event, f.buffer)}

	f.mu.Lock()
	set, ok := f.subs[symbol]
	if !ok {
		set = make(map[*subscription]struct{})
		f.subs[symbol] = set
	}
	set[s] = struct{}{}
	f.mu.Unlock()

	return s.ch, func() { f.remove(symbol, s) }
}

func (f *Feed) remove(symbol string, s *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(symbol, s)
}

func (f *Feed) removeLocked(symbol string, s *subscription) {
	set := f.subs[symbol]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(f.subs, symbol)
	}
}

// Publish implements core.Publisher
func (f *Feed) Publish(_ context.Context, event core.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.subs[event.Symbol]
	if len(set) == 0 {
		return nil
	}
	msg := api.FromEvent(event)
	for s := range set {
		select {
		case s.ch <- &msg:
		default:
			f.removeLocked(event.Symbol, s)
		}
	}
	return nil
}

// Subscribers returns the number of subscriptions on symbol
func (f *Feed) Subscribers(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[symbol])
}

var _ core.Publisher = (*Feed)(nil)
