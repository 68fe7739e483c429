package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/client"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// submitter sends one order and reports how many trades it produced
type submitter func(ctx context.Context, id string, side core.Side, price, qty int64) (int, error)

type options struct {
	Workers         int
	OrdersPerWorker int
	Rate            float64
	Symbol          string
	Seed            int64
}

type result struct {
	Orders   int64
	Errors   int64
	Trades   int64
	Duration time.Duration
	Latency  *hdrhistogram.Histogram
}

func main() {
	addr := flag.String("addr", "", "gRPC server address; empty runs against an in-process engine")
	workers := flag.Int("workers", 16, "concurrent workers")
	orders := flag.Int("orders", 1000, "orders per worker")
	limit := flag.Float64("rate", 0, "orders per second across all workers, 0 for unlimited")
	symbol := flag.String("symbol", "LOAD-TEST", "symbol to trade")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var submit submitter
	if *addr == "" {
		submit = engineSubmitter(core.NewEngine(*symbol))
	} else {
		c, err := client.Dial(*addr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect")
		}
		defer c.Close()
		submit = grpcSubmitter(c, *symbol)
	}

	res := run(ctx, submit, options{
		Workers:         *workers,
		OrdersPerWorker: *orders,
		Rate:            *limit,
		Symbol:          *symbol,
		Seed:            time.Now().UnixNano(),
	})
	report(os.Stdout, res)
	if res.Errors > 0 {
		os.Exit(1)
	}
}

func engineSubmitter(e *core.Engine) submitter {
	return func(ctx context.Context, id string, side core.Side, price, qty int64) (int, error) {
		done, err := e.Submit(ctx, core.NewLimitOrder(id, e.Symbol(), side, fpdecimal.FromInt(qty), fpdecimal.FromInt(price)))
		if err != nil {
			return 0, err
		}
		return len(done.AllTrades()), nil
	}
}

func grpcSubmitter(c api.OrderBookServiceClient, symbol string) submitter {
	return func(ctx context.Context, id string, side core.Side, price, qty int64) (int, error) {
		resp, err := c.SubmitOrder(ctx, &api.OrderRequest{
			ID:       id,
			Symbol:   symbol,
			Side:     side.String(),
			Type:     string(core.TypeLimit),
			Quantity: decimal.NewFromInt(qty),
			Price:    decimal.NewNullDecimal(decimal.NewFromInt(price)),
		})
		if err != nil {
			return 0, err
		}
		return len(resp.AllTrades()), nil
	}
}

// run drives opts.Workers goroutines, each submitting limit orders around a
// fixed mid so that roughly half of them cross
func run(ctx context.Context, submit submitter, opts options) result {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Workers)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = result{Latency: newHistogram()}
	)

	start := time.Now()
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(opts.Seed + int64(w)))
			hist := newHistogram()
			var sent, failed, trades int64

			for i := 0; i < opts.OrdersPerWorker; i++ {
				if err := limiter.Wait(ctx); err != nil {
					break
				}
				side := core.Buy
				if r.Intn(2) == 0 {
					side = core.Sell
				}
				price := 95 + r.Int63n(11)
				qty := 1 + r.Int63n(10)

				t0 := time.Now()
				n, err := submit(ctx, fmt.Sprintf("w%d-%d", w, i), side, price, qty)
				_ = hist.RecordValue(time.Since(t0).Microseconds())
				sent++
				if err != nil {
					if errors.Is(err, context.Canceled) {
						break
					}
					failed++
					continue
				}
				trades += int64(n)
			}

			mu.Lock()
			res.Orders += sent
			res.Errors += failed
			res.Trades += trades
			res.Latency.Merge(hist)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	res.Duration = time.Since(start)
	return res
}

// newHistogram tracks latencies from 1µs to 10s
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 10_000_000, 3)
}

func report(w io.Writer, res result) {
	fmt.Fprintf(w, "orders:     %d\n", res.Orders)
	fmt.Fprintf(w, "errors:     %d\n", res.Errors)
	fmt.Fprintf(w, "trades:     %d\n", res.Trades)
	fmt.Fprintf(w, "duration:   %s\n", res.Duration.Round(time.Millisecond))
	if res.Duration > 0 {
		fmt.Fprintf(w, "throughput: %.0f orders/s\n", float64(res.Orders)/res.Duration.Seconds())
	}
	h := res.Latency
	fmt.Fprintf(w, "latency µs: mean=%.1f p50=%d p90=%d p99=%d p99.9=%d max=%d\n",
		h.Mean(), h.ValueAtQuantile(50), h.ValueAtQuantile(90), h.ValueAtQuantile(99),
		h.ValueAtQuantile(99.9), h.Max())
}
