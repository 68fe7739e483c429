package core

import "github.com/nikolaydubina/fpdecimal"

type matchMode int

const (
	// unconditional walks the opposite side until the taker is filled or the side is empty
	unconditional matchMode = iota
	// priceLimited stops at the first level beyond the taker's limit price
	priceLimited
)

// acceptable reports whether a taker in mode may trade at levelPrice
func acceptable(taker *Order, mode matchMode, levelPrice fpdecimal.Decimal) bool {
	if mode == unconditional {
		return true
	}
	if taker.side == Buy {
		return levelPrice.LessThanOrEqual(taker.price)
	}
	return levelPrice.GreaterThanOrEqual(taker.price)
}

// match crosses taker against the opposite side best level first and, inside
// a level, oldest order first. Every fill executes at the maker's price.
func (ob *OrderBook) match(taker *Order, mode matchMode) []Trade {
	var trades []Trade
	opposite := taker.side.Opposite()
	tree := ob.side(opposite)

	for taker.quantity.GreaterThan(fpdecimal.Zero) {
		level, ok := tree.Min()
		if !ok || !acceptable(taker, mode, level.price) {
			break
		}

		for taker.quantity.GreaterThan(fpdecimal.Zero) && !level.Empty() {
			maker := level.Head()
			qty := taker.quantity
			if maker.quantity.LessThan(qty) {
				qty = maker.quantity
			}

			taker.decreaseQuantity(qty)
			level.fill(maker, qty)

			trade := Trade{
				ID:            ob.tradeID(),
				Symbol:        ob.symbol,
				Price:         level.price,
				Quantity:      qty,
				AggressorSide: taker.side,
				MakerOrderID:  maker.id,
				TakerOrderID:  taker.id,
				Timestamp:     ob.now(),
			}
			ob.recordTrade(trade)
			trades = append(trades, trade)

			if maker.quantity.Equal(fpdecimal.Zero) {
				level.Remove(maker)
				delete(ob.orders, maker.id)
			}
		}

		ob.touch(opposite, level)
		ob.removeEmptyLevels()
	}

	return trades
}

// fillable reports whether a price limited taker could be filled completely
// by the liquidity currently on the book. It does not mutate anything.
func (ob *OrderBook) fillable(taker *Order) bool {
	need := taker.quantity
	ob.side(taker.side.Opposite()).Scan(func(level *PriceLevel) bool {
		if !acceptable(taker, priceLimited, level.price) {
			return false
		}
		need = need.Sub(level.volume)
		return need.GreaterThan(fpdecimal.Zero)
	})
	return !need.GreaterThan(fpdecimal.Zero)
}
