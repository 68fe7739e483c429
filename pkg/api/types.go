package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/shopspring/decimal"
)

// OrderRequest is a submission as received from a client. Numbers may be
// sent as JSON numbers or strings.
type OrderRequest struct {
	ID           string              `json:"id,omitempty"`
	Symbol       string              `json:"symbol"`
	Side         string              `json:"side"`
	Type         string              `json:"type"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.NullDecimal `json:"price"`
	TriggerPrice decimal.NullDecimal `json:"trigger_price"`
}

// ToOrder converts the request into an engine order. Only syntax is checked
// here; the engine validates the rest.
func (r *OrderRequest) ToOrder() (*core.Order, error) {
	side, err := core.ParseSide(r.Side)
	if err != nil {
		return nil, err
	}
	typ, err := core.ParseOrderType(r.Type)
	if err != nil {
		return nil, err
	}
	qty, err := ToFixed(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	price, err := optionalFixed(r.Price)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	trigger, err := optionalFixed(r.TriggerPrice)
	if err != nil {
		return nil, fmt.Errorf("trigger_price: %w", err)
	}
	return core.NewOrder(core.OrderParams{
		ID:           r.ID,
		Symbol:       strings.TrimSpace(r.Symbol),
		Side:         side,
		Type:         typ,
		Quantity:     qty,
		Price:        price,
		TriggerPrice: trigger,
	}), nil
}

// CancelRequest identifies a resting or latent order
type CancelRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
}

// BookRequest asks for market data of one symbol
type BookRequest struct {
	Symbol string `json:"symbol"`
	Levels int    `json:"levels,omitempty"`
}

// ListBooksRequest is empty
type ListBooksRequest struct{}

// ListBooksResponse lists the symbols with a live engine
type ListBooksResponse struct {
	Symbols []string `json:"symbols"`
}

// ErrorResponse is the body of every failed HTTP request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Trade is an execution on the wire
type Trade struct {
	TradeID       string    `json:"trade_id"`
	Symbol        string    `json:"symbol"`
	Price         string    `json:"price"`
	Quantity      string    `json:"quantity"`
	AggressorSide string    `json:"aggressor_side"`
	MakerOrderID  string    `json:"maker_order_id"`
	TakerOrderID  string    `json:"taker_order_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Level is one aggregated price level
type Level struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

// BBO is the top of book
type BBO struct {
	Symbol  string `json:"symbol"`
	BestBid *Level `json:"best_bid"`
	BestAsk *Level `json:"best_ask"`
}

// Depth is the aggregated book, best level first
type Depth struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// Order is an order's state on the wire
type Order struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Side             string    `json:"side"`
	Type             string    `json:"type"`
	Quantity         string    `json:"quantity"`
	OriginalQuantity string    `json:"original_quantity"`
	Price            string    `json:"price,omitempty"`
	TriggerPrice     string    `json:"trigger_price,omitempty"`
	TriggeredFrom    string    `json:"triggered_from,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// OrderResponse reports the outcome of a submission or cancellation
type OrderResponse struct {
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Order     Order           `json:"order"`
	Quantity  string          `json:"quantity"`
	Processed string          `json:"processed"`
	Remaining string          `json:"remaining"`
	Trades    []Trade         `json:"trades"`
	Activated []OrderResponse `json:"activated,omitempty"`
	Discarded []string        `json:"discarded,omitempty"`
}

// AllTrades returns the trades of the order and of every activated order
func (r *OrderResponse) AllTrades() []Trade {
	out := append([]Trade(nil), r.Trades...)
	for i := range r.Activated {
		out = append(out, r.Activated[i].Trades...)
	}
	return out
}

// Event is a committed engine event as sent to streams and queues
type Event struct {
	Kind           string    `json:"kind"`
	Symbol         string    `json:"symbol"`
	Sequence       uint64    `json:"sequence"`
	OrderID        string    `json:"order_id"`
	Trades         []Trade   `json:"trades"`
	BBO            BBO       `json:"bbo"`
	Depth          Depth     `json:"depth"`
	LastTradePrice string    `json:"last_trade_price,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventKindSnapshot marks the first event of a market data stream, which
// carries the book as it was when the stream started
const EventKindSnapshot = "snapshot"

// Websocket message types
const (
	MessageTypeTrade       = "trade"
	MessageTypeDepthUpdate = "depth_update"
)

// TradeMessage is pushed on the trade stream for every execution
type TradeMessage struct {
	Type  string `json:"type"`
	Trade Trade  `json:"trade"`
}

// DepthMessage is pushed on the depth stream after every committed event
type DepthMessage struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence"`
	Depth    Depth  `json:"depth"`
	BBO      BBO    `json:"bbo"`
}

// FromTrade converts an engine trade
func FromTrade(t core.Trade) Trade {
	return Trade{
		TradeID:       t.ID,
		Symbol:        t.Symbol,
		Price:         t.Price.String(),
		Quantity:      t.Quantity.String(),
		AggressorSide: strings.ToLower(t.AggressorSide.String()),
		MakerOrderID:  t.MakerOrderID,
		TakerOrderID:  t.TakerOrderID,
		Timestamp:     t.Timestamp,
	}
}

// FromTrades converts a trade list, never returning nil
func FromTrades(trades []core.Trade) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		out = append(out, FromTrade(t))
	}
	return out
}

func fromLevel(l *core.PriceLevelView) *Level {
	if l == nil {
		return nil
	}
	v := Level{Price: l.Price.String(), Quantity: l.Quantity.String(), Orders: l.Orders}
	return &v
}

func fromLevels(levels []core.PriceLevelView) []Level {
	out := make([]Level, 0, len(levels))
	for i := range levels {
		out = append(out, *fromLevel(&levels[i]))
	}
	return out
}

// FromBBO converts an engine top of book
func FromBBO(symbol string, b core.BBO) BBO {
	return BBO{Symbol: symbol, BestBid: fromLevel(b.Bid), BestAsk: fromLevel(b.Ask)}
}

// FromDepth converts an engine depth view
func FromDepth(symbol string, d core.Depth) Depth {
	return Depth{Symbol: symbol, Bids: fromLevels(d.Bids), Asks: fromLevels(d.Asks)}
}

// FromOrder converts an engine order
func FromOrder(o *core.Order) Order {
	out := Order{
		ID:               o.ID(),
		Symbol:           o.Symbol(),
		Side:             strings.ToLower(o.Side().String()),
		Type:             strings.ToLower(string(o.OrderType())),
		Quantity:         o.Quantity().String(),
		OriginalQuantity: o.OriginalQty().String(),
		TriggeredFrom:    strings.ToLower(string(o.TriggeredFrom())),
		Timestamp:        o.CreatedAt(),
	}
	if p, ok := o.Price(); ok {
		out.Price = p.String()
	}
	if p, ok := o.TriggerPrice(); ok {
		out.TriggerPrice = p.String()
	}
	return out
}

// FromDone converts an engine result
func FromDone(d *core.Done) OrderResponse {
	resp := OrderResponse{
		OrderID:   d.Order.ID(),
		Status:    string(d.Status()),
		Order:     FromOrder(d.Order),
		Quantity:  d.Quantity.String(),
		Processed: d.Processed.String(),
		Remaining: d.Left.String(),
		Trades:    FromTrades(d.Trades),
	}
	for _, a := range d.Activated {
		resp.Activated = append(resp.Activated, FromDone(a))
	}
	for _, o := range d.Discarded {
		resp.Discarded = append(resp.Discarded, o.ID())
	}
	return resp
}

// FromEvent converts a committed engine event
func FromEvent(e core.Event) Event {
	out := Event{
		Kind:     string(e.Kind),
		Symbol:   e.Symbol,
		Sequence: e.Sequence,
		OrderID:  e.OrderID,
		Trades:   FromTrades(e.Trades),
	}
	if s := e.Snapshot; s != nil {
		out.BBO = FromBBO(e.Symbol, s.BBO)
		out.Depth = FromDepth(e.Symbol, s.Depth)
		out.Timestamp = s.Timestamp
		if s.LastTradePrice != nil {
			out.LastTradePrice = s.LastTradePrice.String()
		}
	}
	return out
}
