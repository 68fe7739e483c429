package marketmaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:50051", cfg.GRPCAddr)
	assert.Equal(t, "BTC-USDT", cfg.MarketSymbol)
	assert.Equal(t, 3, cfg.NumLevels)
	assert.Equal(t, "0.01", cfg.OrderSize.String())
	assert.Equal(t, 10*time.Second, cfg.UpdateInterval)
	assert.Equal(t, int32(3), cfg.PricePrecision)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("MATCHBOOK_MM_GRPC_ADDR", "engine:9000")
	t.Setenv("MATCHBOOK_MM_NUM_LEVELS", "5")
	t.Setenv("MATCHBOOK_MM_ORDER_SIZE", "0.5")
	t.Setenv("MATCHBOOK_MM_UPDATE_INTERVAL", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "engine:9000", cfg.GRPCAddr)
	assert.Equal(t, 5, cfg.NumLevels)
	assert.Equal(t, "0.5", cfg.OrderSize.String())
	assert.Equal(t, 2*time.Second, cfg.UpdateInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"MATCHBOOK_MM_NUM_LEVELS":          "0",
		"MATCHBOOK_MM_ORDER_SIZE":          "abc",
		"MATCHBOOK_MM_BASE_SPREAD_PERCENT": "-1",
		"MATCHBOOK_MM_UPDATE_INTERVAL":     "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
