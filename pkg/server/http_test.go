package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	hub     *Hub
	manager *EngineManager
}

func newTestHTTPServer(t *testing.T, opts ...ManagerOption) *testServer {
	t.Helper()
	hub := NewHub()
	opts = append(opts, WithEventPublisher(hub))
	manager := NewEngineManager(opts...)
	srv := httptest.NewServer(NewHTTPServer(manager, hub, nil).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, manager: manager}
}

func (s *testServer) do(t *testing.T, method, path, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHTTP_Root(t *testing.T) {
	srv := newTestHTTPServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/", "", &body))
	assert.Equal(t, "Matching engine is ready!", body["status"])

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(logging.RequestIDHeader))
}

func TestHTTP_SubmitAndQuery(t *testing.T) {
	srv := newTestHTTPServer(t)

	var rest api.OrderResponse
	code := srv.do(t, http.MethodPost, "/orders",
		`{"id":"a1","symbol":"BTC-USDT","side":"sell","type":"limit","quantity":"2","price":"100.5"}`, &rest)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a1", rest.OrderID)
	assert.Equal(t, string(core.StatusResting), rest.Status)
	assert.Empty(t, rest.Trades)

	var fill api.OrderResponse
	code = srv.do(t, http.MethodPost, "/orders",
		`{"symbol":"BTC-USDT","side":"buy","type":"market","quantity":1.5}`, &fill)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, string(core.StatusFilled), fill.Status)
	require.Len(t, fill.Trades, 1)
	assert.Equal(t, "100.500", fill.Trades[0].Price)
	assert.Equal(t, "1.500", fill.Trades[0].Quantity)
	assert.Equal(t, "buy", fill.Trades[0].AggressorSide)

	var bbo api.BBO
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/bbo/BTC-USDT", "", &bbo))
	assert.Nil(t, bbo.BestBid)
	require.NotNil(t, bbo.BestAsk)
	assert.Equal(t, "100.500", bbo.BestAsk.Price)
	assert.Equal(t, "0.500", bbo.BestAsk.Quantity)

	var depth api.Depth
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/depth/BTC-USDT?levels=5", "", &depth))
	assert.Empty(t, depth.Bids)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, 1, depth.Asks[0].Orders)

	var trades []api.Trade
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/trades/BTC-USDT?limit=10", "", &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "a1", trades[0].MakerOrderID)

	var order api.Order
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/orders/BTC-USDT/a1", "", &order))
	assert.Equal(t, "0.500", order.Quantity)
	assert.Equal(t, "2.000", order.OriginalQuantity)
}

func TestHTTP_Errors(t *testing.T) {
	srv := newTestHTTPServer(t, WithAllowedSymbols("BTC-USDT"))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"id":"dup","symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1","price":"90"}`, nil))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/orders", `{`, http.StatusBadRequest},
		{"too precise", http.MethodPost, "/orders", `{"symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1.0001","price":"90"}`, http.StatusBadRequest},
		{"bad side", http.MethodPost, "/orders", `{"symbol":"BTC-USDT","side":"up","type":"limit","quantity":"1","price":"90"}`, http.StatusBadRequest},
		{"missing price", http.MethodPost, "/orders", `{"symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1"}`, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/orders", `{"symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"0","price":"90"}`, http.StatusBadRequest},
		{"unknown symbol", http.MethodPost, "/orders", `{"symbol":"DOGE","side":"buy","type":"limit","quantity":"1","price":"90"}`, http.StatusNotFound},
		{"duplicate id", http.MethodPost, "/orders", `{"id":"dup","symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1","price":"91"}`, http.StatusConflict},
		{"cancel unknown order", http.MethodDelete, "/orders/BTC-USDT/nope", "", http.StatusNotFound},
		{"get unknown order", http.MethodGet, "/orders/BTC-USDT/nope", "", http.StatusNotFound},
		{"bbo unknown symbol", http.MethodGet, "/bbo/DOGE", "", http.StatusNotFound},
		{"negative levels", http.MethodGet, "/depth/BTC-USDT?levels=-1", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/trades/BTC-USDT?limit=x", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body api.ErrorResponse
			assert.Equal(t, tt.want, srv.do(t, tt.method, tt.path, tt.body, &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHTTP_Cancel(t *testing.T) {
	srv := newTestHTTPServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"id":"b1","symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"3","price":"99"}`, nil))

	var resp api.OrderResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/orders/BTC-USDT/b1", "", &resp))
	assert.Equal(t, "b1", resp.OrderID)
	assert.Equal(t, string(core.StatusCanceled), resp.Status)
	assert.Equal(t, "3.000", resp.Remaining)

	var bbo api.BBO
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/bbo/BTC-USDT", "", &bbo))
	assert.Nil(t, bbo.BestBid)
}

func TestWebsocket_TradeStream(t *testing.T) {
	srv := newTestHTTPServer(t)
	conn := srv.dial(t, "/ws/trades/BTC-USDT")
	require.Eventually(t, func() bool {
		return srv.hub.Subscribers(StreamTrades, "BTC-USDT") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"id":"a","symbol":"BTC-USDT","side":"sell","type":"limit","quantity":"1","price":"100"}`, nil))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"id":"b","symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1","price":"100"}`, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg api.TradeMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, api.MessageTypeTrade, msg.Type)
	assert.Equal(t, "a", msg.Trade.MakerOrderID)
	assert.Equal(t, "b", msg.Trade.TakerOrderID)
	assert.Equal(t, "100.000", msg.Trade.Price)
}

func TestWebsocket_DepthStream(t *testing.T) {
	srv := newTestHTTPServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"symbol":"BTC-USDT","side":"buy","type":"limit","quantity":"1","price":"99"}`, nil))

	conn := srv.dial(t, "/ws/depth/BTC-USDT")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first api.DepthMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, api.MessageTypeDepthUpdate, first.Type)
	assert.Equal(t, uint64(1), first.Sequence)
	require.Len(t, first.Depth.Bids, 1)

	require.Eventually(t, func() bool {
		return srv.hub.Subscribers(StreamDepth, "BTC-USDT") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders",
		`{"symbol":"BTC-USDT","side":"sell","type":"limit","quantity":"1","price":"101"}`, nil))

	var next api.DepthMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(2), next.Sequence)
	require.NotNil(t, next.BBO.BestAsk)
	assert.Equal(t, "101.000", next.BBO.BestAsk.Price)
	assert.Equal(t, "99.000", next.BBO.BestBid.Price)
}

func TestWebsocket_UnknownSymbolRefused(t *testing.T) {
	srv := newTestHTTPServer(t, WithAllowedSymbols("BTC-USDT"))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/trades/DOGE"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	srv := newTestHTTPServer(t)
	conn := srv.dial(t, "/ws/trades/BTC-USDT")
	require.Eventually(t, func() bool {
		return srv.hub.Subscribers(StreamTrades, "BTC-USDT") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return srv.hub.Subscribers(StreamTrades, "BTC-USDT") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DepthSubscriberSkipsUpdatesCoveredBySnapshot(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	engine := core.NewEngine("BTC-USDT")

	bid := func(id string, price int64) {
		_, err := engine.Submit(ctx, core.NewLimitOrder(id, "BTC-USDT", core.Buy, fpdecimal.FromInt(1), fpdecimal.FromInt(price)))
		require.NoError(t, err)
	}

	// committed before the subscription, published after it
	bid("a", 99)
	late := core.Event{Kind: core.EventSubmit, Symbol: "BTC-USDT", Sequence: 1, OrderID: "a", Snapshot: engine.Snapshot()}

	c := &wsClient{send: make(chan []byte, sendBufferSize), key: channelKey{StreamDepth, "BTC-USDT"}}
	require.NoError(t, hub.register(c, engine))
	defer hub.unregister(c)
	require.NoError(t, hub.Publish(ctx, late))

	bid("b", 98)
	require.NoError(t, hub.Publish(ctx, core.Event{Kind: core.EventSubmit, Symbol: "BTC-USDT", Sequence: 2, OrderID: "b", Snapshot: engine.Snapshot()}))

	var seqs []uint64
	for len(c.send) > 0 {
		var msg api.DepthMessage
		require.NoError(t, json.Unmarshal(<-c.send, &msg))
		seqs = append(seqs, msg.Sequence)
	}
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestWebsocket_DepthStreamHasNoGapsUnderLoad(t *testing.T) {
	srv := newTestHTTPServer(t)
	engine, err := srv.manager.Engine(context.Background(), "BTC-USDT")
	require.NoError(t, err)

	const orders = 200
	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < orders; i++ {
			if i == orders/4 {
				close(started)
			}
			o := core.NewLimitOrder(fmt.Sprintf("o%d", i), "BTC-USDT", core.Buy, fpdecimal.FromInt(1), fpdecimal.FromInt(int64(50+i%40)))
			_, err := engine.Submit(context.Background(), o)
			assert.NoError(t, err)
		}
	}()

	<-started
	conn := srv.dial(t, "/ws/depth/BTC-USDT")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first api.DepthMessage
	require.NoError(t, conn.ReadJSON(&first))
	last := first.Sequence
	for last < orders {
		var msg api.DepthMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, last+1, msg.Sequence)
		last = msg.Sequence
	}
	<-finished
}
