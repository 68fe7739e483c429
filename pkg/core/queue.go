package core

import "github.com/nikolaydubina/fpdecimal"

// orderQueue is an intrusive FIFO of orders. An order belongs to at most one
// queue at a time; removal from the middle is O(1).
type orderQueue struct {
	head, tail *Order
	size       int
}

func (q *orderQueue) enqueue(o *Order) {
	o.queue = q
	o.prev = q.tail
	o.next = nil
	if q.tail != nil {
		q.tail.next = o
	} else {
		q.head = o
	}
	q.tail = o
	q.size++
}

func (q *orderQueue) remove(o *Order) {
	if o.queue != q {
		return
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		q.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		q.tail = o.prev
	}
	o.prev, o.next, o.queue = nil, nil, nil
	q.size--
}

// each walks the queue head to tail until fn returns false
func (q *orderQueue) each(fn func(o *Order) bool) {
	for o := q.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}

// PriceLevel holds resting orders at one price in arrival order together
// with their aggregate remaining quantity.
type PriceLevel struct {
	orderQueue
	price  fpdecimal.Decimal
	volume fpdecimal.Decimal
}

func newPriceLevel(price fpdecimal.Decimal) *PriceLevel {
	return &PriceLevel{price: price, volume: fpdecimal.Zero}
}

// Price returns the level price
func (l *PriceLevel) Price() fpdecimal.Decimal {
	return l.price
}

// Volume returns the summed remaining quantity at the level
func (l *PriceLevel) Volume() fpdecimal.Decimal {
	return l.volume
}

// Len returns the number of resting orders
func (l *PriceLevel) Len() int {
	return l.size
}

// Empty reports whether the level has no orders left
func (l *PriceLevel) Empty() bool {
	return l.size == 0
}

// Head returns the order with time priority, or nil
func (l *PriceLevel) Head() *Order {
	return l.head
}

// Append adds order at the tail of the level
func (l *PriceLevel) Append(o *Order) {
	l.enqueue(o)
	l.volume = l.volume.Add(o.quantity)
}

// Remove takes order out of the level wherever it sits
func (l *PriceLevel) Remove(o *Order) {
	if o.queue != &l.orderQueue {
		return
	}
	l.remove(o)
	l.volume = l.volume.Sub(o.quantity)
}

// fill decreases a resting order and the level volume by qty
func (l *PriceLevel) fill(o *Order, qty fpdecimal.Decimal) {
	o.decreaseQuantity(qty)
	l.volume = l.volume.Sub(qty)
}

func (l *PriceLevel) view() PriceLevelView {
	return PriceLevelView{Price: l.price, Quantity: l.volume, Orders: l.size}
}
