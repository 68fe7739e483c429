package redis

import (
	"context"
	"testing"
	"time"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/testutil"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const symbol = "BTC-USDT"

func newTestBackend(t *testing.T) *RedisBackend {
	client := testutil.RedisClient(t)
	return NewRedisBackend(client, "test", time.Minute, zaptest.NewLogger(t))
}

func limit(id string, side core.Side, qty, price int64) *core.Order {
	return core.NewLimitOrder(id, symbol, side, fpdecimal.FromInt(qty), fpdecimal.FromInt(price))
}

func TestRedisBackend_Keys(t *testing.T) {
	b := NewRedisBackend(nil, "mb", time.Minute, nil)

	assert.Equal(t, "mb:BTC-USDT:snapshot", b.snapshotKey(symbol))
	assert.Equal(t, "mb:BTC-USDT:trades", b.tradesKey(symbol))
	assert.Equal(t, "mb:BTC-USDT:events", b.Channel(symbol))
	assert.Equal(t, "mb:books", b.booksKey())
	assert.NotNil(t, b.logger)
}

func TestRedisBackend_PublishCachesSnapshotAndTrades(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	e := core.NewEngine(symbol, core.WithPublisher(b))

	_, err := b.Snapshot(ctx, symbol)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = e.Submit(ctx, limit("a1", core.Sell, 1, 100))
	require.NoError(t, err)
	_, err = e.Submit(ctx, limit("a2", core.Sell, 1, 101))
	require.NoError(t, err)
	_, err = e.Submit(ctx, limit("b1", core.Buy, 2, 101))
	require.NoError(t, err)

	snap, err := b.Snapshot(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Sequence)
	assert.Equal(t, "b1", snap.OrderID)
	assert.Nil(t, snap.BBO.BestAsk)
	assert.Nil(t, snap.BBO.BestBid)
	assert.Equal(t, "101.000", snap.LastTradePrice)

	ttl, err := b.client.TTL(ctx, b.snapshotKey(symbol)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	trades, err := b.RecentTrades(ctx, symbol, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "100.000", trades[0].Price)
	assert.Equal(t, "101.000", trades[1].Price)

	last, err := b.RecentTrades(ctx, symbol, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "a2", last[0].MakerOrderID)

	symbols, err := b.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{symbol}, symbols)
}

func TestRedisBackend_TradeLogIsCapped(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	b.SetTradeLogSize(3)
	e := core.NewEngine(symbol, core.WithPublisher(b))

	for i := int64(0); i < 5; i++ {
		_, err := e.Submit(ctx, limit("ask", core.Sell, 1, 100+i))
		require.NoError(t, err)
		_, err = e.Submit(ctx, core.NewMarketOrder("", symbol, core.Buy, fpdecimal.FromInt(1)))
		require.NoError(t, err)
	}

	trades, err := b.RecentTrades(ctx, symbol, 10)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "102.000", trades[0].Price)
	assert.Equal(t, "104.000", trades[2].Price)
}

func TestRedisBackend_Subscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := newTestBackend(t)
	events, err := b.Subscribe(ctx, symbol)
	require.NoError(t, err)

	e := core.NewEngine(symbol, core.WithPublisher(b))
	_, err = e.Submit(ctx, limit("a1", core.Sell, 1, 100))
	require.NoError(t, err)
	_, err = e.Submit(ctx, limit("b1", core.Buy, 1, 100))
	require.NoError(t, err)

	var got []uint64
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Sequence)
			if ev.Sequence == 2 {
				require.Len(t, ev.Trades, 1)
				assert.Equal(t, "buy", ev.Trades[0].AggressorSide)
			}
		case <-ctx.Done():
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	assert.Equal(t, []uint64{1, 2}, got)

	cancel()
	for range events {
	}
}
