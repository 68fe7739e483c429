package marketmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// binancePriceFetcher implements PriceFetcher using the Binance public API
type binancePriceFetcher struct {
	client  *http.Client
	cfg     *Config
	logger  zerolog.Logger
	baseURL string
}

// binanceTickerResponse represents the response from Binance's ticker price endpoint
type binanceTickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// NewPriceFetcher creates a new PriceFetcher that uses the Binance API
func NewPriceFetcher(cfg *Config, logger zerolog.Logger) PriceFetcher {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}

	return &binancePriceFetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With().Str("component", "binancePriceFetcher").Logger(),
		baseURL: cfg.PriceSourceURL,
	}
}

// FetchPrice fetches the current price, retrying with a linear backoff
func (f *binancePriceFetcher) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	attempts := max(f.cfg.MaxRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		price, err := f.fetchOnce(ctx)
		if err == nil {
			f.logger.Debug().
				Str("symbol", f.cfg.ExternalSymbol).
				Str("price", price.String()).
				Int("attempt", attempt).
				Msg("Fetched price")
			return price, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, attempts, err)
		f.logger.Warn().Err(err).Int("attempt", attempt).Int("max_retries", attempts).Msg("Price fetch failed")
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}

	return decimal.Zero, fmt.Errorf("failed to fetch price: %w", lastErr)
}

func (f *binancePriceFetcher) fetchOnce(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, f.cfg.ExternalSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var ticker binanceTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if !ticker.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", ticker.Price)
	}
	return ticker.Price, nil
}

// Close implements PriceFetcher
func (f *binancePriceFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
