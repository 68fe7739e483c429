package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erain9/matchbook/pkg/core"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MarketMaker keeps a ladder of quotes on one book, replacing it every
// UpdateInterval around a freshly fetched reference price
type MarketMaker struct {
	cfg          *Config
	logger       zerolog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     Strategy
	limiter      *rate.Limiter

	mu           sync.Mutex
	activeOrders map[string]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger zerolog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy Strategy) *MarketMaker {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.OrdersPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), max(1, cfg.NumLevels))
	}
	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With().Str("component", "MarketMaker").Logger(),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		limiter:      limiter,
		activeOrders: make(map[string]struct{}),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the market making loop
func (m *MarketMaker) Start(ctx context.Context) {
	m.logger.Info().
		Str("market_symbol", m.cfg.MarketSymbol).
		Dur("update_interval", m.cfg.UpdateInterval).
		Msg("Starting market maker service")

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop ends the loop and pulls every quote still on the book
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info().Msg("Stopping market maker service")
	close(m.stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}
	m.logger.Info().Msg("Market maker stopped")
	return nil
}

func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.updateOrders(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Failed to update orders")
			}
		}
	}
}

// updateOrders replaces the current quotes with a fresh ladder
func (m *MarketMaker) updateOrders(ctx context.Context) error {
	price, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := m.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, order := range orders {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := m.orderPlacer.SubmitOrder(ctx, order)
		if err != nil {
			m.logger.Error().Err(err).
				Str("order_id", order.ID).
				Str("side", order.Side).
				Str("price", order.Price.Decimal.String()).
				Msg("Failed to place order")
			continue
		}

		// only what rests needs cancelling later
		switch core.Status(resp.Status) {
		case core.StatusResting, core.StatusPartiallyFilled:
			m.mu.Lock()
			m.activeOrders[resp.OrderID] = struct{}{}
			m.mu.Unlock()
		}
	}

	return nil
}

// cancelAllOrders cancels every tracked quote, keeping the ones that failed
func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var errs []error
	for _, id := range m.ActiveOrders() {
		if err := m.orderPlacer.CancelOrder(ctx, m.cfg.MarketSymbol, id); err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		delete(m.activeOrders, id)
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// ActiveOrders returns the ids of the quotes believed to rest on the book
func (m *MarketMaker) ActiveOrders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeOrders))
	for id := range m.activeOrders {
		ids = append(ids, id)
	}
	return ids
}
