package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/matchbook/pkg/logging"
	"github.com/erain9/matchbook/pkg/marketmaker"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Setup(logging.Config{
		Level:  os.Getenv("MATCHBOOK_MM_LOG_LEVEL"),
		Pretty: true,
		Output: os.Stdout,
	})
	logger := log.Logger

	cfg, err := marketmaker.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orderPlacer, err := marketmaker.NewGRPCOrderPlacer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create order placer")
	}
	defer orderPlacer.Close()

	priceFetcher := marketmaker.NewPriceFetcher(cfg, logger)
	defer priceFetcher.Close()

	strategy := marketmaker.NewLayeredSymmetricQuoting(cfg, logger)
	mm := marketmaker.NewMarketMaker(cfg, logger, orderPlacer, priceFetcher, strategy)
	mm.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mm.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}
}
