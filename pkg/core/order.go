package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Sell Side = iota
	Buy
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order of this side matches against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide converts "buy"/"sell" (any case) into a Side
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return Sell, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// OrderType represents type of the order
type OrderType string

// Order types
const (
	TypeMarket     OrderType = "MARKET"
	TypeLimit      OrderType = "LIMIT"
	TypeIOC        OrderType = "IOC"
	TypeFOK        OrderType = "FOK"
	TypeStopLoss   OrderType = "STOP_LOSS"
	TypeStopLimit  OrderType = "STOP_LIMIT"
	TypeTakeProfit OrderType = "TAKE_PROFIT"
)

// ParseOrderType accepts both "stop_loss" and "STOP_LOSS" spellings
func ParseOrderType(s string) (OrderType, error) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderType, s)
	}
	return t, nil
}

func (t OrderType) valid() bool {
	switch t {
	case TypeMarket, TypeLimit, TypeIOC, TypeFOK, TypeStopLoss, TypeStopLimit, TypeTakeProfit:
		return true
	}
	return false
}

// Latent reports whether orders of this type wait in the trigger set
// instead of matching on arrival.
func (t OrderType) Latent() bool {
	return t == TypeStopLoss || t == TypeStopLimit || t == TypeTakeProfit
}

// RequiresPrice reports whether a limit price is mandatory
func (t OrderType) RequiresPrice() bool {
	return t == TypeLimit || t == TypeIOC || t == TypeFOK || t == TypeStopLimit
}

// triggered returns the type a latent order becomes once it fires
func (t OrderType) triggered() OrderType {
	switch t {
	case TypeStopLoss, TypeTakeProfit:
		return TypeMarket
	case TypeStopLimit:
		return TypeLimit
	default:
		return t
	}
}

// Order stores information about order
type Order struct {
	id          string
	symbol      string
	side        Side
	orderType   OrderType
	quantity    fpdecimal.Decimal
	originalQty fpdecimal.Decimal
	price       fpdecimal.Decimal
	hasPrice    bool
	trigger     fpdecimal.Decimal
	hasTrigger  bool
	createdAt   time.Time
	seq         uint64
	triggeredBy OrderType
	prev, next  *Order
	queue       *orderQueue
}

// OrderParams carries the caller supplied fields of a new order. Nil prices
// are absent, which is distinct from a zero price.
type OrderParams struct {
	ID           string
	Symbol       string
	Side         Side
	Type         OrderType
	Quantity     fpdecimal.Decimal
	Price        *fpdecimal.Decimal
	TriggerPrice *fpdecimal.Decimal
	CreatedAt    time.Time
}

// NewOrder creates an order from params. It does not validate; the engine
// does that on admission.
func NewOrder(p OrderParams) *Order {
	o := &Order{
		id:          p.ID,
		symbol:      p.Symbol,
		side:        p.Side,
		orderType:   p.Type,
		quantity:    p.Quantity,
		originalQty: p.Quantity,
		createdAt:   p.CreatedAt,
	}
	if p.Price != nil {
		o.price, o.hasPrice = *p.Price, true
	}
	if p.TriggerPrice != nil {
		o.trigger, o.hasTrigger = *p.TriggerPrice, true
	}
	return o
}

// NewMarketOrder creates new market order
func NewMarketOrder(id, symbol string, side Side, quantity fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeMarket, Quantity: quantity})
}

// NewLimitOrder creates new limit order
func NewLimitOrder(id, symbol string, side Side, quantity, price fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeLimit, Quantity: quantity, Price: &price})
}

// NewIOCOrder creates an immediate-or-cancel order
func NewIOCOrder(id, symbol string, side Side, quantity, price fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeIOC, Quantity: quantity, Price: &price})
}

// NewFOKOrder creates a fill-or-kill order
func NewFOKOrder(id, symbol string, side Side, quantity, price fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeFOK, Quantity: quantity, Price: &price})
}

// NewStopLossOrder creates a stop-loss order that becomes a market order when triggered
func NewStopLossOrder(id, symbol string, side Side, quantity, trigger fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeStopLoss, Quantity: quantity, TriggerPrice: &trigger})
}

// NewStopLimitOrder creates a stop-limit order that becomes a limit order at price when triggered
func NewStopLimitOrder(id, symbol string, side Side, quantity, price, trigger fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeStopLimit, Quantity: quantity, Price: &price, TriggerPrice: &trigger})
}

// NewTakeProfitOrder creates a take-profit order that becomes a market order when triggered
func NewTakeProfitOrder(id, symbol string, side Side, quantity, trigger fpdecimal.Decimal) *Order {
	return NewOrder(OrderParams{ID: id, Symbol: symbol, Side: side, Type: TypeTakeProfit, Quantity: quantity, TriggerPrice: &trigger})
}

// Validate checks the order against admission rules. It never mutates the order.
func (o *Order) Validate() error {
	if o.side != Buy && o.side != Sell {
		return ErrInvalidSide
	}
	if !o.orderType.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOrderType, o.orderType)
	}
	if !o.quantity.GreaterThan(fpdecimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, o.quantity)
	}
	if o.orderType.RequiresPrice() && !o.hasPrice {
		return fmt.Errorf("%w: %s order", ErrMissingPrice, o.orderType)
	}
	if o.hasPrice && o.orderType != TypeMarket && !o.price.GreaterThan(fpdecimal.Zero) {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, o.price)
	}
	if o.orderType.Latent() {
		if !o.hasTrigger {
			return fmt.Errorf("%w: %s order", ErrMissingTriggerPrice, o.orderType)
		}
		if !o.trigger.GreaterThan(fpdecimal.Zero) {
			return fmt.Errorf("%w: trigger %s", ErrInvalidPrice, o.trigger)
		}
	}
	return nil
}

// ID returns orderID field copy
func (o *Order) ID() string {
	return o.id
}

// Symbol returns the instrument the order trades
func (o *Order) Symbol() string {
	return o.symbol
}

// Side returns side of the order
func (o *Order) Side() Side {
	return o.side
}

// OrderType returns the current type. A triggered stop reports its converted type.
func (o *Order) OrderType() OrderType {
	return o.orderType
}

// TriggeredFrom returns the latent type this order was converted from, or "" if it never was latent
func (o *Order) TriggeredFrom() OrderType {
	return o.triggeredBy
}

// Quantity returns remaining quantity
func (o *Order) Quantity() fpdecimal.Decimal {
	return o.quantity
}

// OriginalQty returns the quantity the order was submitted with
func (o *Order) OriginalQty() fpdecimal.Decimal {
	return o.originalQty
}

// Price returns the limit price and whether one is set
func (o *Order) Price() (fpdecimal.Decimal, bool) {
	return o.price, o.hasPrice
}

// TriggerPrice returns the trigger price and whether one is set
func (o *Order) TriggerPrice() (fpdecimal.Decimal, bool) {
	return o.trigger, o.hasTrigger
}

// CreatedAt returns the admission timestamp
func (o *Order) CreatedAt() time.Time {
	return o.createdAt
}

// Sequence returns the arrival sequence number assigned on admission
func (o *Order) Sequence() uint64 {
	return o.seq
}

// decreaseQuantity lowers the remaining quantity after a fill
func (o *Order) decreaseQuantity(qty fpdecimal.Decimal) {
	o.quantity = o.quantity.Sub(qty)
}

// activate converts a latent order to its live type, keeping id and quantity
func (o *Order) activate() {
	o.triggeredBy = o.orderType
	o.orderType = o.orderType.triggered()
}

// clone returns a detached copy safe to hand out after the book lock is released
func (o *Order) clone() *Order {
	c := *o
	c.prev, c.next, c.queue = nil, nil, nil
	return &c
}

// String implements Stringer interface
func (o *Order) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\"%s\":\n\tsymbol: %s\n\tside: %s\n\ttype: %s\n\tquantity: %s",
		o.id, o.symbol, o.side, o.orderType, o.quantity)
	if o.hasPrice {
		fmt.Fprintf(&b, "\n\tprice: %s", o.price)
	}
	if o.hasTrigger {
		fmt.Fprintf(&b, "\n\ttrigger: %s", o.trigger)
	}
	return b.String()
}
