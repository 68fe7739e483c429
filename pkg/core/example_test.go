package core_test

import (
	"context"
	"fmt"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

func ExampleEngine_Submit() {
	ctx := context.Background()
	e := core.NewEngine("BTC-USDT")

	if _, err := e.Submit(ctx, core.NewLimitOrder("sell-1", "BTC-USDT", core.Sell, fpdecimal.FromInt(10), fpdecimal.FromInt(10))); err != nil {
		panic(err)
	}
	done, err := e.Submit(ctx, core.NewLimitOrder("buy-1", "BTC-USDT", core.Buy, fpdecimal.FromInt(5), fpdecimal.FromInt(10)))
	if err != nil {
		panic(err)
	}

	fmt.Println(done.Status())
	for _, tr := range done.Trades {
		fmt.Println(tr.MakerOrderID, tr.Price, tr.Quantity)
	}
	ask := e.BestBidAsk().Ask
	fmt.Println(ask.Price, ask.Quantity)
	// Output:
	// filled
	// sell-1 10.000 5.000
	// 10.000 5.000
}

func ExampleNewStopLossOrder() {
	ctx := context.Background()
	e := core.NewEngine("BTC-USDT", core.WithReferencePolicy(core.SideAwareReference{}))
	one := fpdecimal.FromInt(1)

	for _, o := range []*core.Order{
		core.NewLimitOrder("b90", "BTC-USDT", core.Buy, one, fpdecimal.FromInt(90)),
		core.NewLimitOrder("b80", "BTC-USDT", core.Buy, one, fpdecimal.FromInt(80)),
		core.NewStopLossOrder("stop", "BTC-USDT", core.Sell, one, fpdecimal.FromInt(85)),
	} {
		if _, err := e.Submit(ctx, o); err != nil {
			panic(err)
		}
	}
	fmt.Println("pending:", e.PendingTriggers())

	// taking the 90 bid leaves 80 as the best bid, which fires the stop
	done, err := e.Submit(ctx, core.NewMarketOrder("m", "BTC-USDT", core.Sell, one))
	if err != nil {
		panic(err)
	}
	for _, tr := range done.AllTrades() {
		fmt.Println(tr.TakerOrderID, "sold at", tr.Price)
	}
	fmt.Println("pending:", e.PendingTriggers())
	// Output:
	// pending: 1
	// m sold at 90.000
	// stop sold at 80.000
	// pending: 0
}
