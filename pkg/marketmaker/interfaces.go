package marketmaker

import (
	"context"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/shopspring/decimal"
)

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current market price for the configured symbol
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling orders
type OrderPlacer interface {
	SubmitOrder(ctx context.Context, req *api.OrderRequest) (*api.OrderResponse, error)
	// CancelOrder succeeds when the order is no longer on the book,
	// including when it was filled or cancelled before the call
	CancelOrder(ctx context.Context, symbol, orderID string) error
	Close() error
}

// Strategy computes the quotes to place around a reference price
type Strategy interface {
	CalculateOrders(ctx context.Context, currentPrice decimal.Decimal) ([]*api.OrderRequest, error)
}
