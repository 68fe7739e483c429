package core

import "github.com/nikolaydubina/fpdecimal"

// Status summarizes what happened to a submitted order
type Status string

// Order statuses
const (
	StatusFilled          Status = "filled"
	StatusPartiallyFilled Status = "partially_filled"
	StatusResting         Status = "resting"
	StatusPendingTrigger  Status = "pending_trigger"
	StatusCanceled        Status = "cancelled"
	StatusKilled          Status = "killed"
	StatusDiscarded       Status = "discarded"
)

// Done contains information about the order execution result
type Done struct {
	// Order is a detached copy of the order as it stood after processing
	Order *Order
	// Original quantity of the order
	Quantity fpdecimal.Decimal
	// Trades executed by this order as taker, in match order
	Trades []Trade
	// Remaining quantity left for the order
	Left fpdecimal.Decimal
	// Total quantity processed for the order
	Processed fpdecimal.Decimal
	// Whether the remainder rests in the book
	Stored bool
	// Whether the order waits in the trigger set
	Latent bool
	// Whether an unfilled remainder was dropped (market, IOC, killed FOK, explicit cancel)
	Canceled bool
	// Killed is set when a FOK could not be filled completely and produced no trades
	Killed bool
	// Activated holds latent orders that fired after this submission, in firing order
	Activated []*Done
	// Discarded holds latent orders that fired but could not be converted
	Discarded []*Order
}

// newDone creates a new Done object for the given order
func newDone(order *Order) *Done {
	return &Done{
		Order:     order,
		Quantity:  order.quantity,
		Left:      order.quantity,
		Processed: fpdecimal.Zero,
	}
}

// appendTrades adds trades and updates processed and left quantities
func (d *Done) appendTrades(trades []Trade) {
	for _, t := range trades {
		d.Trades = append(d.Trades, t)
		d.Processed = d.Processed.Add(t.Quantity)
	}
	d.Left = d.Quantity.Sub(d.Processed)
}

// detach replaces the live order with a copy so Done can outlive the book lock
func (d *Done) detach() {
	d.Order = d.Order.clone()
	for _, a := range d.Activated {
		a.detach()
	}
	for i, o := range d.Discarded {
		d.Discarded[i] = o.clone()
	}
}

// Status returns the outcome of the submission for the order itself
func (d *Done) Status() Status {
	switch {
	case d.Latent:
		return StatusPendingTrigger
	case d.Killed:
		return StatusKilled
	case d.Stored && d.Processed.GreaterThan(fpdecimal.Zero):
		return StatusPartiallyFilled
	case d.Stored:
		return StatusResting
	case d.Left.Equal(fpdecimal.Zero):
		return StatusFilled
	case d.Canceled:
		return StatusCanceled
	default:
		return StatusDiscarded
	}
}

// AllTrades returns the trades of this submission followed by the trades of
// every activated order, which is the order they were executed in.
func (d *Done) AllTrades() []Trade {
	trades := make([]Trade, 0, len(d.Trades))
	trades = append(trades, d.Trades...)
	for _, a := range d.Activated {
		trades = append(trades, a.AllTrades()...)
	}
	return trades
}
