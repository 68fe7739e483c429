package core

import (
	"fmt"
	"strings"

	"github.com/nikolaydubina/fpdecimal"
)

// ReferencePolicy chooses the market price latent orders are compared
// against. ok is false when no reference price exists, in which case
// nothing fires.
type ReferencePolicy interface {
	ReferencePrice(ob *OrderBook, o *Order) (price fpdecimal.Decimal, ok bool)
	Name() string
}

// BestAskReference uses the best ask for every latent order regardless of side
type BestAskReference struct{}

// ReferencePrice implements ReferencePolicy
func (BestAskReference) ReferencePrice(ob *OrderBook, _ *Order) (fpdecimal.Decimal, bool) {
	level, ok := ob.best(Sell)
	if !ok {
		return fpdecimal.Zero, false
	}
	return level.price, true
}

// Name implements ReferencePolicy
func (BestAskReference) Name() string { return "best_ask" }

// SideAwareReference uses the price the triggered order would trade against:
// best bid for sell orders, best ask for buy orders.
type SideAwareReference struct{}

// ReferencePrice implements ReferencePolicy
func (SideAwareReference) ReferencePrice(ob *OrderBook, o *Order) (fpdecimal.Decimal, bool) {
	level, ok := ob.best(o.side.Opposite())
	if !ok {
		return fpdecimal.Zero, false
	}
	return level.price, true
}

// Name implements ReferencePolicy
func (SideAwareReference) Name() string { return "side" }

// LastTradeReference uses the price of the most recent trade on the book
type LastTradeReference struct{}

// ReferencePrice implements ReferencePolicy
func (LastTradeReference) ReferencePrice(ob *OrderBook, _ *Order) (fpdecimal.Decimal, bool) {
	return ob.LastTradePrice()
}

// Name implements ReferencePolicy
func (LastTradeReference) Name() string { return "last_trade" }

// ParseReferencePolicy maps a config name to a policy. Empty selects best_ask.
func ParseReferencePolicy(name string) (ReferencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "best_ask":
		return BestAskReference{}, nil
	case "side", "side_aware":
		return SideAwareReference{}, nil
	case "last_trade":
		return LastTradeReference{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, name)
	}
}

// shouldTrigger evaluates the firing condition of a latent order
func shouldTrigger(o *Order, ref fpdecimal.Decimal) bool {
	switch o.orderType {
	case TypeStopLoss, TypeStopLimit:
		if o.side == Sell {
			return ref.LessThanOrEqual(o.trigger)
		}
		return ref.GreaterThanOrEqual(o.trigger)
	case TypeTakeProfit:
		return ref.GreaterThanOrEqual(o.trigger)
	}
	return false
}

// runTriggers fires latent orders until none qualifies. The set is scanned in
// insertion order and the scan restarts from the head after every fired order
// completes, so orders made eligible by a cascade fire in the same pass.
func (ob *OrderBook) runTriggers(policy ReferencePolicy) (activated []*Done, discarded []*Order) {
	for {
		var fired *Order
		ob.triggers.each(func(o *Order) bool {
			ref, ok := policy.ReferencePrice(ob, o)
			if ok && shouldTrigger(o, ref) {
				fired = o
				return false
			}
			return true
		})
		if fired == nil {
			return activated, discarded
		}

		ob.removeLatent(fired)
		fired.activate()
		if err := fired.Validate(); err != nil {
			discarded = append(discarded, fired)
			continue
		}
		activated = append(activated, ob.process(fired))
	}
}

// settle runs the trigger pass that closes a unit of work. A latent order
// that fired within its own submission is reported by its execution: the
// quantities and flags follow the activation, its trades stay under
// Activated in firing order.
func (ob *OrderBook) settle(done *Done, policy ReferencePolicy) {
	done.Activated, done.Discarded = ob.runTriggers(policy)
	if !done.Latent || ob.Latent(done.Order.id) {
		return
	}
	done.Latent = false
	for _, a := range done.Activated {
		if a.Order != done.Order {
			continue
		}
		done.Processed = a.Processed
		done.Left = a.Left
		done.Stored = a.Stored
		done.Canceled = a.Canceled
		done.Killed = a.Killed
		return
	}
}
