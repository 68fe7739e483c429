package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/logging"
	"github.com/erain9/matchbook/pkg/otel"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Stream names a websocket feed
type Stream string

// Websocket feeds
const (
	StreamTrades Stream = "trades"
	StreamDepth  Stream = "depth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are checked by the CORS layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

type channelKey struct {
	stream Stream
	symbol string
}

// Hub keeps the websocket subscribers of every (stream, symbol) channel and
// broadcasts committed engine events to them. A subscriber that cannot keep
// up is disconnected instead of slowing down the engine.
type Hub struct {
	mu       sync.RWMutex
	channels map[channelKey]map[*wsClient]struct{}
	metrics  *otel.ServerMetrics
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		channels: make(map[channelKey]map[*wsClient]struct{}),
		metrics:  otel.GetServerMetrics(),
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	key  channelKey
	// depth updates up to this sequence are covered by the initial snapshot
	after uint64
}

// Publish implements core.Publisher
func (h *Hub) Publish(_ context.Context, event core.Event) error {
	msg := api.FromEvent(event)

	if h.Subscribers(StreamTrades, msg.Symbol) > 0 {
		for _, t := range msg.Trades {
			payload, err := json.Marshal(api.TradeMessage{Type: api.MessageTypeTrade, Trade: t})
			if err != nil {
				return err
			}
			h.broadcast(channelKey{StreamTrades, msg.Symbol}, 0, payload)
		}
	}

	if h.Subscribers(StreamDepth, msg.Symbol) > 0 {
		payload, err := json.Marshal(api.DepthMessage{
			Type:     api.MessageTypeDepthUpdate,
			Sequence: msg.Sequence,
			Depth:    msg.Depth,
			BBO:      msg.BBO,
		})
		if err != nil {
			return err
		}
		h.broadcast(channelKey{StreamDepth, msg.Symbol}, msg.Sequence, payload)
	}
	return nil
}

func (h *Hub) broadcast(key channelKey, seq uint64, payload []byte) {
	var slow []*wsClient

	h.mu.RLock()
	for c := range h.channels[key] {
		if seq != 0 && seq <= c.after {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
	}
}

// Subscribers returns the number of clients on a channel
func (h *Hub) Subscribers(stream Stream, symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelKey{stream, symbol}])
}

// register adds c to its channel. A depth subscriber gets the current
// snapshot first. The snapshot is read under the write lock, so every event
// committed before it is covered by it and every later one is broadcast to c.
func (h *Hub) register(c *wsClient, engine *core.Engine) error {
	h.mu.Lock()
	if c.key.stream == StreamDepth {
		snap := engine.Snapshot()
		payload, err := json.Marshal(api.DepthMessage{
			Type:     api.MessageTypeDepthUpdate,
			Sequence: snap.Sequence,
			Depth:    api.FromDepth(engine.Symbol(), snap.Depth),
			BBO:      api.FromBBO(engine.Symbol(), snap.BBO),
		})
		if err != nil {
			h.mu.Unlock()
			return err
		}
		c.send <- payload
		c.after = snap.Sequence
	}
	clients, ok := h.channels[c.key]
	if !ok {
		clients = make(map[*wsClient]struct{})
		h.channels[c.key] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.ClientConnected(context.Background(), string(c.key.stream), 1)
	return nil
}

// unregister removes c and closes its send queue. Closing happens under the
// write lock so no broadcast can send on a closed channel.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	clients := h.channels[c.key]
	_, ok := clients[c]
	if ok {
		delete(clients, c)
		close(c.send)
		if len(clients) == 0 {
			delete(h.channels, c.key)
		}
	}
	h.mu.Unlock()

	if ok {
		h.metrics.ClientConnected(context.Background(), string(c.key.stream), -1)
	}
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*wsClient
	for _, clients := range h.channels {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
}

// ServeStream upgrades the request and subscribes the connection to stream
// for the symbol in the route. The book must already be reachable through
// the manager, so unknown symbols are refused before the upgrade.
func (h *Hub) ServeStream(manager *EngineManager, stream Stream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())
		symbol := mux.Vars(r)["symbol"]

		engine, err := manager.Engine(r.Context(), symbol)
		if err != nil {
			respondError(w, httpStatus(err), err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}

		c := &wsClient{
			conn: conn,
			send: make(chan []byte, sendBufferSize),
			key:  channelKey{stream, engine.Symbol()},
		}
		if err := h.register(c, engine); err != nil {
			logger.Warn().Err(err).Msg("Websocket subscription failed")
			_ = conn.Close()
			return
		}

		logger.Debug().
			Str("stream", string(stream)).
			Str("symbol", engine.Symbol()).
			Str("remote", conn.RemoteAddr().String()).
			Msg("Websocket client connected")

		go c.writePump()
		go h.readPump(c)
	}
}

// readPump discards client messages and unregisters on disconnect
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends one message per frame and pings to keep the connection alive
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ core.Publisher = (*Hub)(nil)
