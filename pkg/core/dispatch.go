package core

import "github.com/nikolaydubina/fpdecimal"

// process routes a validated order by type. It is the only place that
// decides what happens to an unfilled remainder.
func (ob *OrderBook) process(o *Order) *Done {
	done := newDone(o)

	switch o.orderType {
	case TypeMarket:
		done.appendTrades(ob.match(o, unconditional))
		done.Canceled = o.quantity.GreaterThan(fpdecimal.Zero)

	case TypeLimit:
		done.appendTrades(ob.match(o, priceLimited))
		if o.quantity.GreaterThan(fpdecimal.Zero) {
			ob.insert(o)
			done.Stored = true
		}

	case TypeIOC:
		done.appendTrades(ob.match(o, priceLimited))
		done.Canceled = o.quantity.GreaterThan(fpdecimal.Zero)

	case TypeFOK:
		if !ob.fillable(o) {
			done.Canceled = true
			done.Killed = true
			break
		}
		done.appendTrades(ob.match(o, priceLimited))

	case TypeStopLoss, TypeStopLimit, TypeTakeProfit:
		ob.insertLatent(o)
		done.Latent = true
	}

	return done
}
