package core

import (
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// PriceLevelView is an aggregated, read-only view of a price level
type PriceLevelView struct {
	Price    fpdecimal.Decimal
	Quantity fpdecimal.Decimal
	Orders   int
}

// BBO is the best bid and offer. A nil side means that side is empty.
type BBO struct {
	Bid *PriceLevelView
	Ask *PriceLevelView
}

// Depth lists aggregated levels best first
type Depth struct {
	Bids []PriceLevelView
	Asks []PriceLevelView
}

// MarketSnapshot is the public state of a book after a committed mutation.
// Snapshots are immutable once published.
type MarketSnapshot struct {
	Symbol         string
	Sequence       uint64
	BBO            BBO
	Depth          Depth
	LastTradePrice *fpdecimal.Decimal
	Timestamp      time.Time
}

// BestBid returns the highest bid level
func (ob *OrderBook) BestBid() (PriceLevelView, bool) {
	level, ok := ob.best(Buy)
	if !ok {
		return PriceLevelView{}, false
	}
	return level.view(), true
}

// BestAsk returns the lowest ask level
func (ob *OrderBook) BestAsk() (PriceLevelView, bool) {
	level, ok := ob.best(Sell)
	if !ok {
		return PriceLevelView{}, false
	}
	return level.view(), true
}

// BBO returns both sides of the top of book
func (ob *OrderBook) BBO() BBO {
	var bbo BBO
	if v, ok := ob.BestBid(); ok {
		bbo.Bid = &v
	}
	if v, ok := ob.BestAsk(); ok {
		bbo.Ask = &v
	}
	return bbo
}

// Depth returns up to levels price levels per side, best first.
// levels <= 0 selects DefaultDepthLevels.
func (ob *OrderBook) Depth(levels int) Depth {
	if levels <= 0 {
		levels = DefaultDepthLevels
	}
	return Depth{
		Bids: collectLevels(ob.bids.Scan, levels),
		Asks: collectLevels(ob.asks.Scan, levels),
	}
}

func collectLevels(scan func(func(*PriceLevel) bool), limit int) []PriceLevelView {
	out := make([]PriceLevelView, 0, limit)
	scan(func(level *PriceLevel) bool {
		out = append(out, level.view())
		return len(out) < limit
	})
	return out
}

// snapshot builds an immutable market snapshot of the current state
func (ob *OrderBook) snapshot(seq uint64, levels int) *MarketSnapshot {
	s := &MarketSnapshot{
		Symbol:    ob.symbol,
		Sequence:  seq,
		BBO:       ob.BBO(),
		Depth:     ob.Depth(levels),
		Timestamp: ob.now(),
	}
	if p, ok := ob.LastTradePrice(); ok {
		s.LastTradePrice = &p
	}
	return s
}
