package marketmaker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		MarketSymbol:      "BTC-USDT",
		NumLevels:         3,
		BaseSpreadPercent: decimal.RequireFromString("0.1"),
		PriceStepPercent:  decimal.RequireFromString("0.05"),
		OrderSize:         decimal.RequireFromString("0.01"),
		PricePrecision:    3,
		MarketMakerID:     "test-mm",
	}
}

func TestLayeredSymmetricQuoting(t *testing.T) {
	strategy := NewLayeredSymmetricQuoting(testConfig(), zerolog.Nop())
	strategy.now = func() time.Time { return time.Unix(0, 42) }

	orders, err := strategy.CalculateOrders(context.Background(), decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.Len(t, orders, 6)

	// 0.05% half spread is 25, each level steps 25 further out
	wantPrices := []string{"49975", "50025", "49950", "50050", "49925", "50075"}
	for i, o := range orders {
		wantSide := "buy"
		if i%2 == 1 {
			wantSide = "sell"
		}
		assert.Equal(t, wantSide, o.Side)
		assert.Equal(t, "limit", o.Type)
		assert.Equal(t, "BTC-USDT", o.Symbol)
		assert.True(t, o.Quantity.Equal(decimal.RequireFromString("0.01")))
		require.True(t, o.Price.Valid)
		assert.Equal(t, wantPrices[i], o.Price.Decimal.String())
	}
	assert.Equal(t, "test-mm-buy-1-42", orders[0].ID)
	assert.Equal(t, "test-mm-sell-3-42", orders[5].ID)

	// every quote converts to a valid engine order
	for _, o := range orders {
		_, err := o.ToOrder()
		assert.NoError(t, err)
	}
}

func TestLayeredSymmetricQuoting_RoundsAwayFromMid(t *testing.T) {
	cfg := testConfig()
	cfg.NumLevels = 1
	strategy := NewLayeredSymmetricQuoting(cfg, zerolog.Nop())

	orders, err := strategy.CalculateOrders(context.Background(), decimal.RequireFromString("1.2345"))
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// half spread is 0.00061725
	assert.Equal(t, "1.233", orders[0].Price.Decimal.String())
	assert.Equal(t, "1.236", orders[1].Price.Decimal.String())
}

func TestLayeredSymmetricQuoting_InvalidPrice(t *testing.T) {
	strategy := NewLayeredSymmetricQuoting(testConfig(), zerolog.Nop())

	_, err := strategy.CalculateOrders(context.Background(), decimal.Zero)
	assert.Error(t, err)
}
