package marketmaker

import (
	"context"
	"fmt"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/client"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ OrderPlacer = (*grpcOrderPlacer)(nil)

// grpcOrderPlacer implements OrderPlacer over the order book gRPC service
type grpcOrderPlacer struct {
	client api.OrderBookServiceClient
	closer func() error
	cfg    *Config
	logger zerolog.Logger
}

// NewGRPCOrderPlacer connects to the matching engine at cfg.GRPCAddr
func NewGRPCOrderPlacer(cfg *Config, logger zerolog.Logger) (OrderPlacer, error) {
	logger.Info().Str("address", cfg.GRPCAddr).Msg("Connecting to matching engine")

	c, err := client.Dial(cfg.GRPCAddr, grpc.WithUserAgent("MatchbookMarketMaker/0.1"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", cfg.GRPCAddr, err)
	}
	return newOrderPlacer(c, c.Close, cfg, logger), nil
}

func newOrderPlacer(c api.OrderBookServiceClient, closer func() error, cfg *Config, logger zerolog.Logger) *grpcOrderPlacer {
	return &grpcOrderPlacer{
		client: c,
		closer: closer,
		cfg:    cfg,
		logger: logger.With().Str("component", "grpcOrderPlacer").Logger(),
	}
}

// SubmitOrder implements OrderPlacer
func (p *grpcOrderPlacer) SubmitOrder(ctx context.Context, req *api.OrderRequest) (*api.OrderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	p.logger.Debug().
		Str("symbol", req.Symbol).
		Str("order_id", req.ID).
		Str("side", req.Side).
		Str("qty", req.Quantity.String()).
		Str("price", req.Price.Decimal.String()).
		Msg("Submitting order")

	resp, err := p.client.SubmitOrder(callCtx, req)
	if err != nil {
		p.logger.Error().Err(err).Str("order_id", req.ID).Msg("SubmitOrder RPC failed")
		return nil, fmt.Errorf("SubmitOrder failed: %w", err)
	}

	p.logger.Debug().Str("order_id", resp.OrderID).Str("status", resp.Status).Msg("Order submitted")
	return resp, nil
}

// CancelOrder implements OrderPlacer
func (p *grpcOrderPlacer) CancelOrder(ctx context.Context, symbol, orderID string) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	_, err := p.client.CancelOrder(callCtx, &api.CancelRequest{Symbol: symbol, OrderID: orderID})
	if status.Code(err) == codes.NotFound {
		p.logger.Debug().Str("order_id", orderID).Msg("Order already gone, nothing to cancel")
		return nil
	}
	if err != nil {
		p.logger.Error().Err(err).Str("order_id", orderID).Msg("CancelOrder RPC failed")
		return fmt.Errorf("CancelOrder failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection
func (p *grpcOrderPlacer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
