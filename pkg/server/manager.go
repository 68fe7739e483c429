package server

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/logging"
)

var (
	// ErrUnknownSymbol is returned for a symbol outside the configured allow-list
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrInvalidSymbol is returned for an empty symbol
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// OrderBookInfo contains metadata about a live order book
type OrderBookInfo struct {
	Symbol          string    `json:"symbol"`
	ReferencePolicy string    `json:"reference_policy"`
	CreatedAt       time.Time `json:"created_at"`
}

// ManagerOption configures an EngineManager
type ManagerOption func(*EngineManager)

// WithAllowedSymbols restricts the manager to the given symbols. Without it
// any non-empty symbol gets a book on first reference.
func WithAllowedSymbols(symbols ...string) ManagerOption {
	return func(m *EngineManager) {
		if len(symbols) == 0 {
			return
		}
		m.allowed = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			m.allowed[strings.TrimSpace(s)] = true
		}
	}
}

// WithEventPublisher sets the publisher every engine shares
func WithEventPublisher(p core.Publisher) ManagerOption {
	return func(m *EngineManager) { m.publisher = p }
}

// WithEngineOptions adds options applied to every engine the manager creates
func WithEngineOptions(opts ...core.Option) ManagerOption {
	return func(m *EngineManager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// EngineManager owns one engine per symbol. Engines are created on first
// reference and live for the rest of the process.
type EngineManager struct {
	mu         sync.RWMutex
	engines    map[string]*core.Engine
	info       map[string]*OrderBookInfo
	allowed    map[string]bool
	publisher  core.Publisher
	engineOpts []core.Option
}

// NewEngineManager creates a new EngineManager
func NewEngineManager(opts ...ManagerOption) *EngineManager {
	m := &EngineManager{
		engines: make(map[string]*core.Engine),
		info:    make(map[string]*OrderBookInfo),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the engine for symbol, creating it if needed
func (m *EngineManager) Engine(ctx context.Context, symbol string) (*core.Engine, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if m.allowed != nil && !m.allowed[symbol] {
		return nil, ErrUnknownSymbol
	}

	m.mu.RLock()
	e, ok := m.engines[symbol]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[symbol]; ok {
		return e, nil
	}

	opts := append([]core.Option{}, m.engineOpts...)
	if m.publisher != nil {
		opts = append(opts, core.WithPublisher(m.publisher))
	}
	e = core.NewEngine(symbol, opts...)
	m.engines[symbol] = e
	m.info[symbol] = &OrderBookInfo{
		Symbol:          symbol,
		ReferencePolicy: e.ReferencePolicy().Name(),
		CreatedAt:       time.Now(),
	}

	logger := logging.FromContext(ctx)
	logger.Info().
		Str("symbol", symbol).
		Str("reference_policy", e.ReferencePolicy().Name()).
		Msg("Created order book")
	return e, nil
}

// Symbols returns the symbols with a live engine, sorted
func (m *EngineManager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.engines))
	for s := range m.engines {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ListOrderBooks returns information about all order books
func (m *EngineManager) ListOrderBooks() []OrderBookInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]OrderBookInfo, 0, len(m.info))
	for _, info := range m.info {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Preload creates the engines of the allow-list up front
func (m *EngineManager) Preload(ctx context.Context) error {
	for symbol := range m.allowed {
		if _, err := m.Engine(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}
