package marketmaker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every market maker environment variable, e.g. MATCHBOOK_MM_GRPC_ADDR
const EnvPrefix = "MATCHBOOK_MM"

// Config holds all configuration for the market maker service
type Config struct {
	// gRPC connection settings
	GRPCAddr       string
	RequestTimeout time.Duration

	// Market settings
	MarketSymbol   string // e.g., "BTC-USDT"
	ExternalSymbol string // e.g., "BTCUSDT"
	PriceSourceURL string // e.g., "https://api.binance.com"

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent decimal.Decimal
	PriceStepPercent  decimal.Decimal
	OrderSize         decimal.Decimal
	PricePrecision    int32
	UpdateInterval    time.Duration
	OrdersPerSecond   float64
	MarketMakerID     string

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from MATCHBOOK_MM_* environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)

	v.SetDefault("GRPC_ADDR", "localhost:50051")
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Second)
	v.SetDefault("MARKET_SYMBOL", "BTC-USDT")
	v.SetDefault("EXTERNAL_SYMBOL", "BTCUSDT")
	v.SetDefault("PRICE_SOURCE_URL", "https://api.binance.com")
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", "0.1")
	v.SetDefault("PRICE_STEP_PERCENT", "0.05")
	v.SetDefault("ORDER_SIZE", "0.01")
	v.SetDefault("PRICE_PRECISION", 3)
	v.SetDefault("UPDATE_INTERVAL", 10*time.Second)
	v.SetDefault("ORDERS_PER_SECOND", 20)
	v.SetDefault("ID", "mm-01")
	v.SetDefault("HTTP_TIMEOUT", 5*time.Second)
	v.SetDefault("MAX_RETRIES", 3)

	v.AutomaticEnv()

	cfg := &Config{
		GRPCAddr:        v.GetString("GRPC_ADDR"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		MarketSymbol:    v.GetString("MARKET_SYMBOL"),
		ExternalSymbol:  v.GetString("EXTERNAL_SYMBOL"),
		PriceSourceURL:  v.GetString("PRICE_SOURCE_URL"),
		NumLevels:       v.GetInt("NUM_LEVELS"),
		PricePrecision:  v.GetInt32("PRICE_PRECISION"),
		UpdateInterval:  v.GetDuration("UPDATE_INTERVAL"),
		OrdersPerSecond: v.GetFloat64("ORDERS_PER_SECOND"),
		MarketMakerID:   v.GetString("ID"),
		HTTPTimeout:     v.GetDuration("HTTP_TIMEOUT"),
		MaxRetries:      v.GetInt("MAX_RETRIES"),
	}

	var err error
	for key, dst := range map[string]*decimal.Decimal{
		"BASE_SPREAD_PERCENT": &cfg.BaseSpreadPercent,
		"PRICE_STEP_PERCENT":  &cfg.PriceStepPercent,
		"ORDER_SIZE":          &cfg.OrderSize,
	} {
		if *dst, err = decimal.NewFromString(v.GetString(key)); err != nil {
			return nil, fmt.Errorf("invalid configuration: %s_%s: %w", EnvPrefix, key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports the first setting the market maker cannot run with
func (cfg *Config) Validate() error {
	switch {
	case cfg.GRPCAddr == "":
		return fmt.Errorf("GRPC_ADDR must not be empty")
	case cfg.MarketSymbol == "":
		return fmt.Errorf("MARKET_SYMBOL must not be empty")
	case cfg.ExternalSymbol == "":
		return fmt.Errorf("EXTERNAL_SYMBOL must not be empty")
	case cfg.PriceSourceURL == "":
		return fmt.Errorf("PRICE_SOURCE_URL must not be empty")
	case cfg.NumLevels <= 0:
		return fmt.Errorf("NUM_LEVELS must be positive")
	case !cfg.BaseSpreadPercent.IsPositive():
		return fmt.Errorf("BASE_SPREAD_PERCENT must be positive")
	case !cfg.PriceStepPercent.IsPositive():
		return fmt.Errorf("PRICE_STEP_PERCENT must be positive")
	case !cfg.OrderSize.IsPositive():
		return fmt.Errorf("ORDER_SIZE must be positive")
	case cfg.PricePrecision < 0:
		return fmt.Errorf("PRICE_PRECISION must not be negative")
	case cfg.UpdateInterval <= 0:
		return fmt.Errorf("UPDATE_INTERVAL must be positive")
	case cfg.MarketMakerID == "":
		return fmt.Errorf("ID must not be empty")
	}
	return nil
}
