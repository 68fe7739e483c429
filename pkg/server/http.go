package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/logging"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// DefaultTradeLimit is the number of trades returned when no limit is given
const DefaultTradeLimit = 100

var errBadQuery = errors.New("invalid query parameter")

// HTTPServer serves the REST API and the websocket streams
type HTTPServer struct {
	manager *EngineManager
	hub     *Hub
	router  *mux.Router
	cors    *cors.Cors
}

// NewHTTPServer creates the router. An empty origin list allows any origin.
func NewHTTPServer(manager *EngineManager, hub *Hub, allowedOrigins []string) *HTTPServer {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s := &HTTPServer{
		manager: manager,
		hub:     hub,
		router:  mux.NewRouter(),
		cors: cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", logging.RequestIDHeader},
			ExposedHeaders: []string{logging.RequestIDHeader},
		}),
	}
	s.setupRoutes()
	return s
}

func (s *HTTPServer) setupRoutes() {
	s.router.Use(logging.HTTPMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/books", s.handleListBooks).Methods(http.MethodGet)

	s.router.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/orders/{symbol}/{id}", s.handleGetOrder).Methods(http.MethodGet)
	s.router.HandleFunc("/orders/{symbol}/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	s.router.HandleFunc("/bbo/{symbol}", s.handleBBO).Methods(http.MethodGet)
	s.router.HandleFunc("/depth/{symbol}", s.handleDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/trades/{symbol}", s.handleTrades).Methods(http.MethodGet)

	s.router.HandleFunc("/ws/trades/{symbol}", s.hub.ServeStream(s.manager, StreamTrades))
	s.router.HandleFunc("/ws/depth/{symbol}", s.hub.ServeStream(s.manager, StreamDepth))
}

// Handler returns the router wrapped in the CORS layer
func (s *HTTPServer) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "Matching engine is ready!"})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"books":  len(s.manager.Symbols()),
	})
}

func (s *HTTPServer) handleListBooks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.manager.ListOrderBooks())
}

func (s *HTTPServer) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req api.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	order, err := req.ToOrder()
	if err != nil {
		respondError(w, httpStatus(err), err)
		return
	}
	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		respondError(w, httpStatus(err), err)
		return
	}

	done, err := engine.Submit(ctx, order)
	if err != nil {
		logger.Debug().Err(err).Str("symbol", req.Symbol).Msg("Order rejected")
		respondError(w, httpStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, api.FromDone(done))
}

func (s *HTTPServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	order, found := engine.Order(mux.Vars(r)["id"])
	if !found {
		respondError(w, http.StatusNotFound, core.ErrNonexistentOrder)
		return
	}
	respondJSON(w, http.StatusOK, api.FromOrder(order))
}

func (s *HTTPServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	done, err := engine.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, httpStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, api.FromDone(done))
}

func (s *HTTPServer) handleBBO(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, api.FromBBO(engine.Symbol(), engine.BestBidAsk()))
}

func (s *HTTPServer) handleDepth(w http.ResponseWriter, r *http.Request) {
	levels, err := queryInt(r, "levels", core.DefaultDepthLevels)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, api.FromDepth(engine.Symbol(), engine.Depth(levels)))
}

func (s *HTTPServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", DefaultTradeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	engine, ok := s.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, api.FromTrades(engine.Trades(limit)))
}

// engine resolves the {symbol} route variable, writing the error response
// when it cannot
func (s *HTTPServer) engine(w http.ResponseWriter, r *http.Request) (*core.Engine, bool) {
	engine, err := s.manager.Engine(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, httpStatus(err), err)
		return nil, false
	}
	return engine, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadQuery, name, raw)
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
