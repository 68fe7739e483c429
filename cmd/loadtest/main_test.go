package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_InProcessEngine(t *testing.T) {
	e := core.NewEngine("LOAD-TEST")

	res := run(context.Background(), engineSubmitter(e), options{
		Workers:         4,
		OrdersPerWorker: 50,
		Symbol:          "LOAD-TEST",
		Seed:            1,
	})

	assert.Equal(t, int64(200), res.Orders)
	assert.Zero(t, res.Errors)
	assert.Equal(t, int64(200), res.Latency.TotalCount())
	assert.Equal(t, res.Trades, int64(len(e.Trades(0))))

	snap := e.Snapshot()
	if snap.BBO.Bid != nil && snap.BBO.Ask != nil {
		assert.True(t, snap.BBO.Bid.Price.LessThan(snap.BBO.Ask.Price))
	}
}

func TestRun_CountsErrors(t *testing.T) {
	var calls atomic.Int64
	submit := func(_ context.Context, _ string, _ core.Side, _, _ int64) (int, error) {
		if calls.Add(1)%2 == 0 {
			return 0, errors.New("rejected")
		}
		return 1, nil
	}

	res := run(context.Background(), submit, options{Workers: 2, OrdersPerWorker: 10, Rate: 1000})

	assert.Equal(t, int64(20), res.Orders)
	assert.Equal(t, int64(10), res.Errors)
	assert.Equal(t, int64(10), res.Trades)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := run(ctx, engineSubmitter(core.NewEngine("X")), options{Workers: 2, OrdersPerWorker: 100, Rate: 10})
	assert.Zero(t, res.Orders)
}

func TestReport(t *testing.T) {
	res := run(context.Background(), engineSubmitter(core.NewEngine("X")), options{Workers: 1, OrdersPerWorker: 5})

	var buf bytes.Buffer
	report(&buf, res)
	require.Contains(t, buf.String(), "orders:     5")
	assert.Contains(t, buf.String(), "p99=")
}
