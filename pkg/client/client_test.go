package client

import (
	"context"
	"net"
	"testing"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func TestNewOrderRequest(t *testing.T) {
	req, err := NewOrderRequest("BTC-USDT", "buy", "stop_limit", "1.5", "101", "100")
	require.NoError(t, err)
	assert.Equal(t, "1.5", req.Quantity.String())
	require.True(t, req.Price.Valid)
	assert.Equal(t, "101", req.Price.Decimal.String())
	require.True(t, req.TriggerPrice.Valid)

	req, err = NewOrderRequest("BTC-USDT", "buy", "market", "2", "", "")
	require.NoError(t, err)
	assert.False(t, req.Price.Valid)
	assert.False(t, req.TriggerPrice.Valid)

	_, err = NewOrderRequest("BTC-USDT", "buy", "limit", "abc", "1", "")
	assert.Error(t, err)
	_, err = NewOrderRequest("BTC-USDT", "buy", "limit", "1", "x", "")
	assert.Error(t, err)
}

func TestClient_RoundTrip(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	feed := server.NewFeed()
	manager := server.NewEngineManager(server.WithEventPublisher(feed))
	grpcServer := grpc.NewServer()
	server.RegisterOrderBookService(grpcServer, server.NewGRPCOrderBookService(manager, feed))
	go func() { _ = grpcServer.Serve(lis) }()
	defer grpcServer.Stop()

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	req, err := NewOrderRequest("BTC-USDT", "sell", "limit", "1", "100", "")
	require.NoError(t, err)
	resp, err := c.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "resting", resp.Status)

	bbo, err := c.GetBBO(ctx, &api.BookRequest{Symbol: "BTC-USDT"})
	require.NoError(t, err)
	require.NotNil(t, bbo.BestAsk)
	assert.Equal(t, "100.000", bbo.BestAsk.Price)
}
