package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erain9/matchbook/pkg/otel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Engine owns the order book of one symbol. Every submission runs as one
// unit of work under a single lock: admission, matching, book mutation and
// the trigger pass. Events are handed to the publisher after the lock is
// released, in commit order.
type Engine struct {
	mu   sync.Mutex // guards book and seq
	book *OrderBook
	seq  uint64

	pubMu     sync.Mutex // guards published
	pubTurn   *sync.Cond // signalled when published advances
	published uint64     // sequence of the last event handed to the publisher

	snap atomic.Pointer[MarketSnapshot]

	publisher     Publisher
	reference     ReferencePolicy
	metrics       *otel.OrderBookMetrics
	logger        zerolog.Logger
	orderID       func() string
	snapshotDepth int
}

// Option configures an Engine
type Option func(*Engine)

// WithPublisher sets the sink for committed events
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithReferencePolicy sets the price latent orders are evaluated against
func WithReferencePolicy(p ReferencePolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.reference = p
		}
	}
}

// WithClock overrides the time source for order and trade timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.book.now = now }
}

// WithTradeIDGenerator overrides the trade id source
func WithTradeIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.book.tradeID = fn }
}

// WithOrderIDGenerator overrides the id source for orders submitted without one
func WithOrderIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.orderID = fn }
}

// WithMetrics sets the metric instruments the engine records to
func WithMetrics(m *otel.OrderBookMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSnapshotDepth sets how many levels per side published snapshots carry
func WithSnapshotDepth(levels int) Option {
	return func(e *Engine) { e.snapshotDepth = levels }
}

// NewEngine creates an engine with an empty book for symbol
func NewEngine(symbol string, opts ...Option) *Engine {
	e := &Engine{
		book:          NewOrderBook(symbol),
		reference:     BestAskReference{},
		orderID:       uuid.NewString,
		snapshotDepth: DefaultDepthLevels,
	}
	e.pubTurn = sync.NewCond(&e.pubMu)
	e.logger = log.With().Str("symbol", symbol).Logger()
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = otel.GetOrderBookMetrics()
	}
	e.snap.Store(e.book.snapshot(0, e.snapshotDepth))
	return e
}

// Symbol returns the instrument this engine trades
func (e *Engine) Symbol() string {
	return e.book.symbol
}

// ReferencePolicy returns the active trigger reference policy
func (e *Engine) ReferencePolicy() ReferencePolicy {
	return e.reference
}

// Submit admits, matches and settles one order. Validation failures return
// an error and leave the book untouched. A FOK that cannot be filled is a
// successful submission with no trades.
//
// The engine takes ownership of order; read its final state from Done.
func (e *Engine) Submit(ctx context.Context, order *Order) (done *Done, err error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanProcessOrder,
		attribute.String(otel.AttributeSymbol, e.book.symbol),
		attribute.String(otel.AttributeOrderID, order.ID()),
		attribute.String(otel.AttributeOrderSide, order.Side().String()),
		attribute.String(otel.AttributeOrderType, string(order.OrderType())),
		attribute.String(otel.AttributeOrderQuantity, order.Quantity().String()),
	)
	defer span.End()

	if order.id == "" {
		order.id = e.orderID()
	}
	if order.symbol == "" {
		order.symbol = e.book.symbol
	}
	if err := e.admissible(order); err != nil {
		e.reject(ctx, order, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	submitted := order.orderType
	start := time.Now()
	e.mu.Lock()
	if _, exists := e.book.orders[order.id]; exists {
		e.mu.Unlock()
		err := ErrOrderExists
		e.reject(ctx, order, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.book.admit(order)
	done = e.book.process(order)
	_, triggerSpan := otel.StartOrderSpan(ctx, otel.SpanTriggerScan,
		attribute.Int(otel.AttributeTriggerPending, e.book.PendingTriggers()))
	e.book.settle(done, e.reference)
	triggerSpan.SetAttributes(attribute.Int(otel.AttributeActivatedCount, len(done.Activated)))
	triggerSpan.End()
	e.book.checkInvariants()

	done.detach()
	event := e.commit(EventSubmit, order.id, done.AllTrades())
	e.mu.Unlock()

	e.metrics.RecordMatchDuration(ctx, e.book.symbol, string(submitted), time.Since(start))
	e.metrics.RecordSubmitted(ctx, e.book.symbol, string(submitted), string(done.Status()))
	e.metrics.RecordTrades(ctx, e.book.symbol, int64(len(event.Trades)))
	e.metrics.RecordTriggered(ctx, e.book.symbol, int64(len(done.Activated)))

	e.logger.Debug().
		Str("order_id", order.id).
		Str("type", string(submitted)).
		Str("status", string(done.Status())).
		Int("trades", len(event.Trades)).
		Int("activated", len(done.Activated)).
		Msg("Order processed")

	e.publishInOrder(ctx, event)

	otel.AddAttributes(span,
		attribute.String(otel.AttributeOrderStatus, string(done.Status())),
		attribute.String(otel.AttributeExecutedQuantity, done.Processed.String()),
		attribute.String(otel.AttributeRemainingQuantity, done.Left.String()),
		attribute.Int(otel.AttributeTradeCount, len(event.Trades)),
	)
	span.SetStatus(codes.Ok, "order processed")
	return done, nil
}

// Cancel removes a resting or latent order. Removing liquidity can move the
// reference price, so the trigger pass runs afterwards as for a submission.
func (e *Engine) Cancel(ctx context.Context, orderID string) (*Done, error) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanCancelOrder,
		attribute.String(otel.AttributeSymbol, e.book.symbol),
		attribute.String(otel.AttributeOrderID, orderID),
	)
	defer span.End()

	e.mu.Lock()
	order, err := e.book.cancel(orderID)
	if err != nil {
		e.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	done := newDone(order)
	done.Quantity = order.originalQty
	done.Processed = order.originalQty.Sub(order.quantity)
	done.Canceled = true
	e.book.settle(done, e.reference)
	e.book.checkInvariants()

	done.detach()
	event := e.commit(EventCancel, orderID, done.AllTrades())
	e.mu.Unlock()

	e.metrics.RecordCanceled(ctx, e.book.symbol)
	e.metrics.RecordTrades(ctx, e.book.symbol, int64(len(event.Trades)))
	e.metrics.RecordTriggered(ctx, e.book.symbol, int64(len(done.Activated)))
	e.logger.Debug().Str("order_id", orderID).Msg("Order cancelled")

	e.publishInOrder(ctx, event)

	span.SetStatus(codes.Ok, "order cancelled")
	return done, nil
}

// admissible runs the checks that need no book state
func (e *Engine) admissible(o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.symbol != e.book.symbol {
		return ErrSymbolMismatch
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, o *Order, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		reason = "invalid_quantity"
	case errors.Is(err, ErrMissingPrice):
		reason = "missing_price"
	case errors.Is(err, ErrMissingTriggerPrice):
		reason = "missing_trigger_price"
	case errors.Is(err, ErrOrderExists):
		reason = "duplicate_id"
	case errors.Is(err, ErrSymbolMismatch):
		reason = "symbol_mismatch"
	}
	e.metrics.RecordRejected(ctx, e.book.symbol, reason)
	e.logger.Debug().Err(err).Str("order_id", o.id).Str("reason", reason).Msg("Order rejected")
}

// commit stores a fresh snapshot and returns the event describing the unit
// of work. Must be called with mu held.
func (e *Engine) commit(kind EventKind, orderID string, trades []Trade) Event {
	e.seq++
	snap := e.book.snapshot(e.seq, e.snapshotDepth)
	e.snap.Store(snap)
	return Event{
		Kind:     kind,
		Symbol:   e.book.symbol,
		Sequence: e.seq,
		OrderID:  orderID,
		Trades:   trades,
		Snapshot: snap,
	}
}

// publishInOrder waits until every earlier event has been handed to the
// publisher, then publishes event. The book lock is not held, so a slow
// publisher delays later publications but never a book mutation or read.
// The caller's cancellation does not apply: the unit of work is committed.
func (e *Engine) publishInOrder(ctx context.Context, event Event) {
	if e.publisher == nil {
		return
	}
	e.pubMu.Lock()
	for e.published != event.Sequence-1 {
		e.pubTurn.Wait()
	}
	e.pubMu.Unlock()

	defer func() {
		e.pubMu.Lock()
		e.published = event.Sequence
		e.pubTurn.Broadcast()
		e.pubMu.Unlock()
	}()
	e.publish(context.WithoutCancel(ctx), event)
}

// publish hands event to the publisher. Failures are logged and counted but
// never undo a committed unit of work.
func (e *Engine) publish(ctx context.Context, event Event) {
	ctx, span := otel.StartOrderSpan(ctx, otel.SpanPublishEvent,
		attribute.Int64(otel.AttributeSequence, int64(event.Sequence)),
		attribute.Int(otel.AttributeTradeCount, len(event.Trades)),
	)
	defer span.End()

	if err := e.publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		e.metrics.RecordPublishFailure(ctx, e.book.symbol)
		e.logger.Warn().Err(err).Uint64("sequence", event.Sequence).Msg("Failed to publish market data")
	}
}

// Snapshot returns the market state as of the last committed unit of work
func (e *Engine) Snapshot() *MarketSnapshot {
	return e.snap.Load()
}

// BestBidAsk returns the top of book from the last committed snapshot
func (e *Engine) BestBidAsk() BBO {
	return e.snap.Load().BBO
}

// Depth returns up to levels per side. Requests within the snapshot depth
// are served from the snapshot; deeper ones read the book under the lock.
func (e *Engine) Depth(levels int) Depth {
	if levels <= 0 {
		levels = DefaultDepthLevels
	}
	if levels <= e.snapshotDepth {
		d := e.snap.Load().Depth
		return Depth{Bids: truncateLevels(d.Bids, levels), Asks: truncateLevels(d.Asks, levels)}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Depth(levels)
}

func truncateLevels(levels []PriceLevelView, n int) []PriceLevelView {
	if len(levels) > n {
		levels = levels[:n]
	}
	out := make([]PriceLevelView, len(levels))
	copy(out, levels)
	return out
}

// Trades returns up to limit most recent trades
func (e *Engine) Trades(limit int) []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Trades(limit)
}

// Order returns a copy of a resting or latent order
func (e *Engine) Order(id string) (*Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.book.Order(id)
	if !ok {
		return nil, false
	}
	return o.clone(), true
}

// PendingTriggers returns the number of latent orders waiting to fire
func (e *Engine) PendingTriggers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.PendingTriggers()
}
