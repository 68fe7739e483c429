package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherForwardsEvents(t *testing.T) {
	sender := NewMockMessageSender()
	pub := NewPublisher(sender)
	e := core.NewEngine("BTC-USDT", core.WithPublisher(pub))
	ctx := context.Background()

	_, err := e.Submit(ctx, core.NewLimitOrder("a", "BTC-USDT", core.Sell, fpdecimal.FromInt(1), fpdecimal.FromInt(100)))
	require.NoError(t, err)
	_, err = e.Submit(ctx, core.NewMarketOrder("b", "BTC-USDT", core.Buy, fpdecimal.FromInt(1)))
	require.NoError(t, err)

	events := sender.Events()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, "b", events[1].OrderID)
	require.Len(t, events[1].Trades, 1)
	assert.Equal(t, "a", events[1].Trades[0].MakerOrderID)

	require.NoError(t, pub.Close())
	assert.True(t, sender.Closed())
}

func TestPublisherFailureIsReported(t *testing.T) {
	sender := NewMockMessageSender()
	sender.Err = errors.New("queue unavailable")

	err := NewPublisher(sender).Publish(context.Background(), core.Event{Symbol: "X", Sequence: 1})
	assert.ErrorIs(t, err, sender.Err)
	assert.Len(t, sender.Events(), 1)
}

func TestEncodeDecode(t *testing.T) {
	ev := core.Event{Kind: core.EventCancel, Symbol: "ETH-USDT", Sequence: 7, OrderID: "o1"}
	sender := NewMockMessageSender()
	require.NoError(t, NewPublisher(sender).Publish(context.Background(), ev))
	msg := sender.Events()[0]

	data, err := Encode(&msg)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "cancel", decoded.Kind)
	assert.Equal(t, uint64(7), decoded.Sequence)
	assert.Equal(t, []byte("ETH-USDT"), Key(decoded))

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}
