package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/messaging"
	"github.com/rs/zerolog/log"
)

// DefaultPoolSize bounds the number of concurrent producers
const DefaultPoolSize = 32

// ErrPoolClosed is returned by a closed pool
var ErrPoolClosed = errors.New("sender pool closed")

// SenderPool hands out senders for concurrent use and is itself a
// messaging.MessageSender. Senders that fail are closed and replaced on the
// next Get.
type SenderPool struct {
	senders chan messaging.MessageSender
	factory func() (messaging.MessageSender, error)

	mu     sync.RWMutex
	closed bool
}

// NewSenderPool creates a pool of up to size senders built by factory. The
// pool starts with one sender so misconfiguration is reported early.
func NewSenderPool(size int, factory func() (messaging.MessageSender, error)) (*SenderPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &SenderPool{
		senders: make(chan messaging.MessageSender, size),
		factory: factory,
	}
	first, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}
	p.senders <- first
	return p, nil
}

// NewKafkaSenderPool is a pool of sarama senders for brokers and topic
func NewKafkaSenderPool(size int, brokers []string, topic string) (*SenderPool, error) {
	return NewSenderPool(size, func() (messaging.MessageSender, error) {
		return NewQueueMessageSender(brokers, topic)
	})
}

// Get takes an idle sender or builds a new one
func (p *SenderPool) Get() (messaging.MessageSender, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	select {
	case s := <-p.senders:
		return s, nil
	default:
		return p.factory()
	}
}

// Put returns a sender to the pool, closing it if the pool is full or closed
func (p *SenderPool) Put(s messaging.MessageSender) {
	if s == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		_ = s.Close()
		return
	}
	select {
	case p.senders <- s:
	default:
		log.Warn().Msg("Sender pool is full, closing sender")
		_ = s.Close()
	}
}

// SendEvent sends event with a pooled sender
func (p *SenderPool) SendEvent(ctx context.Context, event *api.Event) error {
	s, err := p.Get()
	if err != nil {
		return err
	}
	if err := s.SendEvent(ctx, event); err != nil {
		// a failed producer may hold a broken connection
		_ = s.Close()
		return err
	}
	p.Put(s)
	return nil
}

// Len returns the number of idle senders
func (p *SenderPool) Len() int {
	return len(p.senders)
}

// Close closes every idle sender. Senders in use are closed when returned.
func (p *SenderPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for {
		select {
		case s := <-p.senders:
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

var _ messaging.MessageSender = (*SenderPool)(nil)
