package marketmaker

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LayeredSymmetricQuoting quotes NumLevels bids and asks spaced evenly
// around the reference price
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger zerolog.Logger) *LayeredSymmetricQuoting {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With().Str("component", "LayeredSymmetricQuoting").Logger(),
		now:    time.Now,
	}
}

// CalculateOrders implements Strategy. Orders alternate bid, ask from the
// innermost level outwards.
func (s *LayeredSymmetricQuoting) CalculateOrders(_ context.Context, currentPrice decimal.Decimal) ([]*api.OrderRequest, error) {
	if !currentPrice.IsPositive() {
		return nil, fmt.Errorf("reference price must be positive, got %s", currentPrice)
	}

	halfSpread := currentPrice.Mul(s.cfg.BaseSpreadPercent).Div(hundred).Div(decimal.NewFromInt(2))
	step := currentPrice.Mul(s.cfg.PriceStepPercent).Div(hundred)
	stamp := s.now().UnixNano()

	orders := make([]*api.OrderRequest, 0, s.cfg.NumLevels*2)
	for i := 0; i < s.cfg.NumLevels; i++ {
		offset := halfSpread.Add(step.Mul(decimal.NewFromInt(int64(i))))
		bid := currentPrice.Sub(offset).RoundFloor(s.cfg.PricePrecision)
		ask := currentPrice.Add(offset).RoundCeil(s.cfg.PricePrecision)
		if !bid.IsPositive() {
			break
		}

		orders = append(orders,
			s.quote("buy", bid, i+1, stamp),
			s.quote("sell", ask, i+1, stamp),
		)

		s.logger.Debug().
			Int("level", i+1).
			Str("bid_price", bid.String()).
			Str("ask_price", ask.String()).
			Str("quantity", s.cfg.OrderSize.String()).
			Msg("Calculated order pair")
	}

	return orders, nil
}

func (s *LayeredSymmetricQuoting) quote(side string, price decimal.Decimal, level int, stamp int64) *api.OrderRequest {
	return &api.OrderRequest{
		ID:       fmt.Sprintf("%s-%s-%d-%d", s.cfg.MarketMakerID, side, level, stamp),
		Symbol:   s.cfg.MarketSymbol,
		Side:     side,
		Type:     "limit",
		Quantity: s.cfg.OrderSize,
		Price:    decimal.NewNullDecimal(price),
	}
}
