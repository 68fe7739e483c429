package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		name  string
		order *Order
		ref   string
		want  bool
	}{
		{"sell stop loss at trigger", NewStopLossOrder("x", "S", Sell, dec("1"), dec("95")), "95", true},
		{"sell stop loss below", NewStopLossOrder("x", "S", Sell, dec("1"), dec("95")), "94", true},
		{"sell stop loss above", NewStopLossOrder("x", "S", Sell, dec("1"), dec("95")), "96", false},
		{"buy stop loss above", NewStopLossOrder("x", "S", Buy, dec("1"), dec("105")), "106", true},
		{"buy stop loss below", NewStopLossOrder("x", "S", Buy, dec("1"), dec("105")), "104", false},
		{"sell stop limit below", NewStopLimitOrder("x", "S", Sell, dec("1"), dec("90"), dec("95")), "95", true},
		{"buy stop limit below", NewStopLimitOrder("x", "S", Buy, dec("1"), dec("110"), dec("105")), "100", false},
		{"take profit sell above", NewTakeProfitOrder("x", "S", Sell, dec("1"), dec("105")), "105", true},
		{"take profit buy above", NewTakeProfitOrder("x", "S", Buy, dec("1"), dec("105")), "107", true},
		{"take profit below", NewTakeProfitOrder("x", "S", Sell, dec("1"), dec("105")), "104", false},
		{"limit never", limit("x", Buy, "1", "100"), "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldTrigger(tt.order, dec(tt.ref)))
		})
	}
}

func TestParseReferencePolicy(t *testing.T) {
	for name, want := range map[string]string{
		"":           "best_ask",
		"best_ask":   "best_ask",
		"side":       "side",
		"side_aware": "side",
		"LAST_TRADE": "last_trade",
	} {
		p, err := ParseReferencePolicy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p.Name())
	}

	_, err := ParseReferencePolicy("mid")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestTriggers_NoReferencePriceNothingFires(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("bid", Buy, "1", "90"))
	done := place(ob, NewStopLossOrder("s", testSymbol, Buy, dec("1"), dec("1")))

	assert.True(t, done.Latent)
	assert.Empty(t, done.Activated)
	assert.Equal(t, 1, ob.PendingTriggers())
	assert.True(t, ob.Latent("s"))
}

func TestTriggers_FireInInsertionOrder(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("b1", Buy, "1", "90"))
	place(ob, limit("b2", Buy, "1", "89"))
	place(ob, limit("ask", Sell, "1", "100"))
	place(ob, NewStopLossOrder("s1", testSymbol, Sell, dec("1"), dec("96")))
	place(ob, NewStopLossOrder("s2", testSymbol, Sell, dec("1"), dec("97")))
	require.Equal(t, 2, ob.PendingTriggers())

	done := place(ob, limit("drop", Sell, "1", "95"))

	require.Len(t, done.Activated, 2)
	assert.Equal(t, "s1", done.Activated[0].Order.ID())
	assert.Equal(t, "s2", done.Activated[1].Order.ID())
	assert.Equal(t, "b1", done.Activated[0].Trades[0].MakerOrderID)
	assert.Equal(t, "b2", done.Activated[1].Trades[0].MakerOrderID)
	assert.Equal(t, 0, ob.PendingTriggers())
}

func TestTriggers_Cascade(t *testing.T) {
	ob := newTestBook()
	policy := SideAwareReference{}
	run := func(o *Order) *Done {
		require.NoError(t, o.Validate())
		ob.admit(o)
		d := ob.process(o)
		d.Activated, d.Discarded = ob.runTriggers(policy)
		ob.checkInvariants()
		return d
	}

	run(limit("b90", Buy, "1", "90"))
	run(limit("b80", Buy, "1", "80"))
	run(limit("b70", Buy, "1", "70"))
	run(NewStopLossOrder("s1", testSymbol, Sell, dec("1"), dec("85")))
	run(NewStopLossOrder("s2", testSymbol, Sell, dec("1"), dec("75")))
	require.Equal(t, 2, ob.PendingTriggers())

	// hitting the 90 bid exposes 80, which fires s1; s1 consumes 80 and exposes 70, which fires s2
	done := run(NewMarketOrder("m", testSymbol, Sell, dec("1")))

	require.Len(t, done.Trades, 1)
	require.Len(t, done.Activated, 2)
	assert.Equal(t, "s1", done.Activated[0].Order.ID())
	assert.True(t, done.Activated[0].Trades[0].Price.Equal(dec("80")))
	assert.Equal(t, "s2", done.Activated[1].Order.ID())
	assert.True(t, done.Activated[1].Trades[0].Price.Equal(dec("70")))

	prices := []string{}
	for _, tr := range done.AllTrades() {
		prices = append(prices, tr.Price.String())
	}
	assert.Equal(t, []string{"90.000", "80.000", "70.000"}, prices)
	assert.Equal(t, 0, ob.bids.Len())
}

func TestTriggers_StopLimitRestsAfterFiring(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("a100", Sell, "1", "100"))
	place(ob, limit("a103", Sell, "1", "103"))
	done := place(ob, NewStopLimitOrder("sl", testSymbol, Buy, dec("1"), dec("102"), dec("101")))
	require.True(t, done.Latent)
	require.Empty(t, done.Activated)

	done = place(ob, limit("lift", Buy, "1", "100"))
	require.Len(t, done.Activated, 1)
	fired := done.Activated[0]
	assert.Equal(t, TypeLimit, fired.Order.OrderType())
	assert.Empty(t, fired.Trades)
	assert.True(t, fired.Stored)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(dec("102")))
	assert.False(t, ob.Latent("sl"))
	_, resting := ob.Order("sl")
	assert.True(t, resting)
}

func TestTriggers_TakeProfit(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("bid", Buy, "1", "99"))
	place(ob, limit("a100", Sell, "1", "100"))
	place(ob, limit("a110", Sell, "1", "110"))
	done := place(ob, NewTakeProfitOrder("tp", testSymbol, Sell, dec("1"), dec("105")))
	require.Empty(t, done.Activated)

	done = place(ob, limit("lift", Buy, "1", "100"))
	require.Len(t, done.Activated, 1)
	require.Len(t, done.Activated[0].Trades, 1)
	assert.True(t, done.Activated[0].Trades[0].Price.Equal(dec("99")))
}

func TestTriggers_FiresOnSubmissionWhenAlreadyEligible(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("ask", Sell, "2", "100"))
	done := place(ob, NewStopLossOrder("s", testSymbol, Buy, dec("1"), dec("100")))

	assert.False(t, done.Latent)
	assert.False(t, ob.Latent("s"))
	assert.Equal(t, 0, ob.PendingTriggers())
	assert.Equal(t, StatusFilled, done.Status())
	assert.True(t, done.Processed.Equal(dec("1")))
	assert.Empty(t, done.Trades)
	require.Len(t, done.Activated, 1)
	assert.Equal(t, "s", done.Activated[0].Order.ID())
	assert.Len(t, done.Activated[0].Trades, 1)
	assert.Len(t, done.AllTrades(), 1)
}

func TestTriggers_FiredAtOnceStartsCascade(t *testing.T) {
	ob := newTestBook()

	place(ob, limit("bid", Buy, "1", "99"))
	place(ob, limit("a100", Sell, "1", "100"))
	place(ob, limit("a105", Sell, "1", "105"))
	place(ob, NewTakeProfitOrder("tp", testSymbol, Sell, dec("1"), dec("103")))
	require.Equal(t, 1, ob.PendingTriggers())

	// s fires on admission and lifts 100, the best ask moves to 105 and tp fires
	done := place(ob, NewStopLossOrder("s", testSymbol, Buy, dec("1"), dec("100")))

	assert.False(t, done.Latent)
	assert.Equal(t, StatusFilled, done.Status())
	assert.Equal(t, 0, ob.PendingTriggers())
	require.Len(t, done.Activated, 2)
	assert.Equal(t, "s", done.Activated[0].Order.ID())
	assert.Equal(t, "tp", done.Activated[1].Order.ID())
	assert.Equal(t, StatusFilled, done.Activated[1].Status())

	prices := []string{}
	for _, tr := range done.AllTrades() {
		prices = append(prices, tr.Price.String())
	}
	assert.Equal(t, []string{"100.000", "99.000"}, prices)
}

func TestTriggers_CancelLatent(t *testing.T) {
	ob := newTestBook()

	place(ob, NewStopLossOrder("s", testSymbol, Sell, dec("1"), dec("50")))
	require.True(t, ob.Latent("s"))

	o, err := ob.cancel("s")
	require.NoError(t, err)
	assert.Equal(t, TypeStopLoss, o.OrderType())
	assert.Equal(t, 0, ob.PendingTriggers())
}

func TestLastTradeReference(t *testing.T) {
	ob := newTestBook()
	_, ok := LastTradeReference{}.ReferencePrice(ob, nil)
	assert.False(t, ok)

	place(ob, limit("a", Sell, "1", "101"))
	place(ob, NewMarketOrder("m", testSymbol, Buy, dec("1")))

	p, ok := LastTradeReference{}.ReferencePrice(ob, nil)
	require.True(t, ok)
	assert.True(t, p.Equal(dec("101")))
}
