package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/tidwall/btree"
)

// OrderBook holds the state of one symbol: both sides of resting
// liquidity, the trigger set of latent orders and the trade log.
//
// OrderBook is not safe for concurrent use. Engine serializes access.
type OrderBook struct {
	symbol string

	bids *btree.BTreeG[*PriceLevel] // highest price first
	asks *btree.BTreeG[*PriceLevel] // lowest price first

	orders   map[string]*Order // resting and latent orders by id
	triggers orderQueue

	trades         []Trade
	lastTradePrice fpdecimal.Decimal
	hasLastTrade   bool

	touched []touchedLevel
	seq     uint64

	now     func() time.Time
	tradeID func() string
}

type touchedLevel struct {
	side  Side
	level *PriceLevel
}

// NewOrderBook creates an empty book for symbol
func NewOrderBook(symbol string) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		symbol: symbol,
		bids: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.price.GreaterThan(b.price)
		}, opts),
		asks: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.price.LessThan(b.price)
		}, opts),
		orders:  make(map[string]*Order),
		now:     time.Now,
		tradeID: uuid.NewString,
	}
}

// Symbol returns the instrument of the book
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) side(s Side) *btree.BTreeG[*PriceLevel] {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

// best returns the top level of the given side
func (ob *OrderBook) best(s Side) (*PriceLevel, bool) {
	return ob.side(s).Min()
}

// Order returns a resting or latent order by id
func (ob *OrderBook) Order(id string) (*Order, bool) {
	o, ok := ob.orders[id]
	return o, ok
}

// Latent reports whether id is waiting in the trigger set
func (ob *OrderBook) Latent(id string) bool {
	o, ok := ob.orders[id]
	return ok && o.queue == &ob.triggers
}

// PendingTriggers returns the number of latent orders
func (ob *OrderBook) PendingTriggers() int {
	return ob.triggers.size
}

// admit stamps the arrival sequence and timestamp of a new order
func (ob *OrderBook) admit(o *Order) {
	ob.seq++
	o.seq = ob.seq
	if o.createdAt.IsZero() {
		o.createdAt = ob.now()
	}
}

// insert rests order at the tail of its limit price level
func (ob *OrderBook) insert(o *Order) {
	if !o.quantity.GreaterThan(fpdecimal.Zero) {
		panic(fmt.Sprintf("orderbook %s: resting order %s with non-positive quantity %s", ob.symbol, o.id, o.quantity))
	}
	tree := ob.side(o.side)
	level, ok := tree.Get(&PriceLevel{price: o.price})
	if !ok {
		level = newPriceLevel(o.price)
		tree.Set(level)
	}
	level.Append(o)
	ob.orders[o.id] = o
	ob.touch(o.side, level)
	ob.removeEmptyLevels()
}

// insertLatent appends order to the trigger set
func (ob *OrderBook) insertLatent(o *Order) {
	ob.triggers.enqueue(o)
	ob.orders[o.id] = o
}

func (ob *OrderBook) removeLatent(o *Order) {
	ob.triggers.remove(o)
	delete(ob.orders, o.id)
}

// cancel removes a resting or latent order
func (ob *OrderBook) cancel(id string) (*Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNonexistentOrder, id)
	}
	if o.queue == &ob.triggers {
		ob.removeLatent(o)
		return o, nil
	}
	level, ok := ob.side(o.side).Get(&PriceLevel{price: o.price})
	if !ok {
		panic(fmt.Sprintf("orderbook %s: order %s indexed without a price level", ob.symbol, id))
	}
	level.Remove(o)
	delete(ob.orders, id)
	ob.touch(o.side, level)
	ob.removeEmptyLevels()
	return o, nil
}

func (ob *OrderBook) touch(s Side, level *PriceLevel) {
	ob.touched = append(ob.touched, touchedLevel{side: s, level: level})
}

// removeEmptyLevels drops every touched level that no longer holds orders.
// All mutations go through it so a side never contains an empty level.
func (ob *OrderBook) removeEmptyLevels() {
	for _, t := range ob.touched {
		if t.level.Empty() {
			ob.side(t.side).Delete(t.level)
		}
	}
	ob.touched = ob.touched[:0]
}

// recordTrade appends to the trade log and updates the last trade price
func (ob *OrderBook) recordTrade(t Trade) {
	ob.trades = append(ob.trades, t)
	ob.lastTradePrice = t.Price
	ob.hasLastTrade = true
}

// Trades returns up to limit most recent trades, oldest first. limit <= 0 returns all.
func (ob *OrderBook) Trades(limit int) []Trade {
	from := 0
	if limit > 0 && len(ob.trades) > limit {
		from = len(ob.trades) - limit
	}
	out := make([]Trade, len(ob.trades)-from)
	copy(out, ob.trades[from:])
	return out
}

// LastTradePrice returns the price of the most recent trade
func (ob *OrderBook) LastTradePrice() (fpdecimal.Decimal, bool) {
	return ob.lastTradePrice, ob.hasLastTrade
}

// checkInvariants panics if the book is crossed or a level is inconsistent.
// A violation is a defect in the engine, never a caller error.
func (ob *OrderBook) checkInvariants() {
	bid, okBid := ob.best(Buy)
	ask, okAsk := ob.best(Sell)
	if okBid && bid.Empty() || okAsk && ask.Empty() {
		panic(fmt.Sprintf("orderbook %s: empty price level left on book", ob.symbol))
	}
	if okBid && okAsk && !bid.price.LessThan(ask.price) {
		panic(fmt.Sprintf("orderbook %s: crossed book, best bid %s >= best ask %s", ob.symbol, bid.price, ask.price))
	}
}
