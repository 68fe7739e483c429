// Package server exposes the matching engines over gRPC, REST and websockets.
package server

import (
	"context"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCOrderBookService implements the OrderBookService gRPC interface
type GRPCOrderBookService struct {
	manager *EngineManager
	feed    *Feed
}

// NewGRPCOrderBookService creates a new GRPCOrderBookService. feed must be
// one of the publishers of the manager's engines for streams to see events.
func NewGRPCOrderBookService(manager *EngineManager, feed *Feed) *GRPCOrderBookService {
	return &GRPCOrderBookService{
		manager: manager,
		feed:    feed,
	}
}

// RegisterOrderBookService registers the order book service with the provided gRPC server
func RegisterOrderBookService(grpcServer *grpc.Server, service *GRPCOrderBookService) {
	api.RegisterOrderBookServiceServer(grpcServer, service)
}

// SubmitOrder admits an order into the book of its symbol
func (s *GRPCOrderBookService) SubmitOrder(ctx context.Context, req *api.OrderRequest) (*api.OrderResponse, error) {
	logger := logging.FromContext(ctx).With().
		Str("method", "SubmitOrder").
		Str("symbol", req.Symbol).
		Str("order_id", req.ID).
		Logger()

	logger.Debug().
		Str("side", req.Side).
		Str("type", req.Type).
		Str("quantity", req.Quantity.String()).
		Msg("Request received")

	order, err := req.ToOrder()
	if err != nil {
		return nil, grpcError(err)
	}
	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		return nil, grpcError(err)
	}

	done, err := engine.Submit(ctx, order)
	if err != nil {
		return nil, grpcError(err)
	}

	resp := api.FromDone(done)
	return &resp, nil
}

// CancelOrder removes a resting or latent order
func (s *GRPCOrderBookService) CancelOrder(ctx context.Context, req *api.CancelRequest) (*api.OrderResponse, error) {
	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("method", "CancelOrder").
		Str("symbol", req.Symbol).
		Str("order_id", req.OrderID).
		Msg("Request received")

	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		return nil, grpcError(err)
	}
	done, err := engine.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, grpcError(err)
	}

	resp := api.FromDone(done)
	return &resp, nil
}

// GetBBO returns the best bid and offer
func (s *GRPCOrderBookService) GetBBO(ctx context.Context, req *api.BookRequest) (*api.BBO, error) {
	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		return nil, grpcError(err)
	}
	bbo := api.FromBBO(engine.Symbol(), engine.BestBidAsk())
	return &bbo, nil
}

// GetDepth returns up to req.Levels aggregated levels per side
func (s *GRPCOrderBookService) GetDepth(ctx context.Context, req *api.BookRequest) (*api.Depth, error) {
	if req.Levels < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "levels must not be negative, got %d", req.Levels)
	}
	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		return nil, grpcError(err)
	}
	levels := req.Levels
	if levels == 0 {
		levels = core.DefaultDepthLevels
	}
	depth := api.FromDepth(engine.Symbol(), engine.Depth(levels))
	return &depth, nil
}

// ListBooks lists the symbols with a live engine
func (s *GRPCOrderBookService) ListBooks(ctx context.Context, _ *api.ListBooksRequest) (*api.ListBooksResponse, error) {
	return &api.ListBooksResponse{Symbols: s.manager.Symbols()}, nil
}

// StreamMarketData sends the current state of the book and then every
// committed event until the client goes away
func (s *GRPCOrderBookService) StreamMarketData(req *api.BookRequest, stream grpc.ServerStreamingServer[api.Event]) error {
	ctx := stream.Context()
	logger := logging.FromContext(ctx).With().
		Str("method", "StreamMarketData").
		Str("symbol", req.Symbol).
		Logger()

	engine, err := s.manager.Engine(ctx, req.Symbol)
	if err != nil {
		return grpcError(err)
	}

	events, unsubscribe := s.feed.Subscribe(engine.Symbol())
	defer unsubscribe()

	// events already queued with a sequence at or below the snapshot are
	// skipped so the stream never goes backwards
	snap := engine.Snapshot()
	initial := api.FromEvent(core.Event{Symbol: engine.Symbol(), Sequence: snap.Sequence, Snapshot: snap})
	initial.Kind = api.EventKindSnapshot
	if err := stream.Send(&initial); err != nil {
		return err
	}
	last := snap.Sequence

	logger.Debug().Uint64("sequence", last).Msg("Stream started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return status.Error(codes.ResourceExhausted, "subscriber fell behind")
			}
			if ev.Sequence <= last {
				continue
			}
			if err := stream.Send(ev); err != nil {
				return err
			}
			last = ev.Sequence
		}
	}
}

var _ api.OrderBookServiceServer = (*GRPCOrderBookService)(nil)
