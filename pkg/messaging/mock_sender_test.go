package messaging

import (
	"context"
	"sync"

	"github.com/erain9/matchbook/pkg/api"
)

// MockMessageSender records events in memory for tests
type MockMessageSender struct {
	mu     sync.Mutex
	events []api.Event
	closed bool

	// Err, when set, is returned by SendEvent after recording
	Err error
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendEvent records event
func (m *MockMessageSender) SendEvent(_ context.Context, event *api.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return m.Err
}

// Events returns a copy of the recorded events
func (m *MockMessageSender) Events() []api.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.Event(nil), m.events...)
}

// Closed reports whether Close was called
func (m *MockMessageSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the sender closed
func (m *MockMessageSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockMessageSender implements MessageSender
var _ MessageSender = (*MockMessageSender)(nil)
