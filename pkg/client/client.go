// Package client is a thin gRPC client for the order book service.
package client

import (
	"fmt"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/otel"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the generated-style service client and owns its connection
type Client struct {
	api.OrderBookServiceClient
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily on
// the first call. Extra options are appended to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otel.NewGRPCClientStatsHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}
	conn, err := grpc.NewClient(addr, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	return &Client{
		OrderBookServiceClient: api.NewOrderBookServiceClient(conn),
		conn:                   conn,
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// NewOrderRequest builds a request from command line style strings. Empty
// price or trigger mean the field is absent.
func NewOrderRequest(symbol, side, typ, quantity, price, trigger string) (*api.OrderRequest, error) {
	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	req := &api.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     typ,
		Quantity: qty,
	}
	if price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		req.Price = decimal.NewNullDecimal(p)
	}
	if trigger != "" {
		p, err := decimal.NewFromString(trigger)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger price %q: %w", trigger, err)
		}
		req.TriggerPrice = decimal.NewNullDecimal(p)
	}
	return req, nil
}
