package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/matchbook/config"
	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/backend/redis"
	"github.com/erain9/matchbook/pkg/core"
	"github.com/erain9/matchbook/pkg/db/queue"
	"github.com/erain9/matchbook/pkg/logging"
	"github.com/erain9/matchbook/pkg/messaging"
	"github.com/erain9/matchbook/pkg/messaging/kafka"
	"github.com/erain9/matchbook/pkg/otel"
	"github.com/erain9/matchbook/pkg/server"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.LogFormat == "pretty",
		Output: os.Stdout,
	})
	logger := log.Logger
	ctx := logger.WithContext(context.Background())

	cleanup, err := otel.Init(otel.Config{
		ServiceVersion:   cfg.Telemetry.ServiceVersion,
		Endpoint:         cfg.Telemetry.Endpoint,
		CollectorEnabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.Telemetry.Enabled {
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start runtime metrics")
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up server")
	}

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("Failed to listen")
	}
	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Server.HTTPAddr).Msg("Failed to listen")
	}
	errCh := a.serve(ctx, grpcLis, httpLis)

	// The consumer is a developer aid which logs the events on the topic
	if cfg.Kafka.Enabled && cfg.Server.LogLevel == "debug" {
		consumer, err := startEventLogger(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to start Kafka event logger")
		} else {
			defer consumer.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.shutdown(shutdownCtx)

	logger.Info().Msg("Servers shutdown complete")
}

// app holds the servers and the publishers behind them
type app struct {
	manager    *server.EngineManager
	hub        *server.Hub
	grpcServer *grpc.Server
	httpServer *http.Server
	closers    []func() error
}

// newApp wires the engines, their publishers and both front ends
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.FromContext(ctx)

	policy, err := core.ParseReferencePolicy(cfg.Engine.TriggerReference)
	if err != nil {
		return nil, err
	}

	a := &app{hub: server.NewHub()}
	feed := server.NewFeed()
	publishers := core.MultiPublisher{a.hub, feed}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, redis.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		zl, err := newZapLogger(cfg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		publishers = append(publishers, redis.NewRedisBackend(client, cfg.Redis.Prefix, cfg.Redis.SnapshotTTL, zl))
		a.closers = append(a.closers, client.Close, func() error { _ = zl.Sync(); return nil })
		logger.Info().Str("addr", cfg.Redis.Addr).Str("prefix", cfg.Redis.Prefix).Msg("Publishing market data to Redis")
	}

	if cfg.Kafka.Enabled {
		sender, err := newMessageSender(cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		pub := messaging.NewPublisher(sender)
		publishers = append(publishers, pub)
		a.closers = append(a.closers, pub.Close)
		logger.Info().
			Str("client", cfg.Kafka.Client).
			Str("broker", cfg.Kafka.BrokerAddr).
			Str("topic", cfg.Kafka.Topic).
			Msg("Publishing events to Kafka")
	}

	a.manager = server.NewEngineManager(
		server.WithAllowedSymbols(cfg.Engine.Symbols...),
		server.WithEventPublisher(publishers),
		server.WithEngineOptions(
			core.WithSnapshotDepth(cfg.Engine.SnapshotDepth),
			core.WithReferencePolicy(policy),
		),
	)
	if err := a.manager.Preload(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otel.NewGRPCStatsHandler()),
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor()),
	)
	server.RegisterOrderBookService(a.grpcServer, server.NewGRPCOrderBookService(a.manager, feed))
	// Enable reflection for tools like grpcurl
	reflection.Register(a.grpcServer)

	a.httpServer = &http.Server{
		Handler:           server.NewHTTPServer(a.manager, a.hub, cfg.Server.CORSOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func newMessageSender(cfg *config.Config) (messaging.MessageSender, error) {
	switch cfg.Kafka.Client {
	case config.KafkaClientSarama:
		return queue.NewKafkaSenderPool(queue.DefaultPoolSize, []string{cfg.Kafka.BrokerAddr}, cfg.Kafka.Topic)
	case config.KafkaClientKafkaGo:
		return kafka.NewKafkaMessageSender(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic)
	default:
		return nil, fmt.Errorf("unknown kafka client %q", cfg.Kafka.Client)
	}
}

// startEventLogger tails the event topic with the configured client
func startEventLogger(ctx context.Context, cfg *config.Config) (io.Closer, error) {
	logger := logging.FromContext(ctx)
	if cfg.Kafka.Client == config.KafkaClientKafkaGo {
		return kafka.SetupConsumer(ctx, logger, cfg.Kafka.BrokerAddr, cfg.Kafka.Topic), nil
	}

	consumer, err := queue.NewQueueMessageConsumer([]string{cfg.Kafka.BrokerAddr}, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	go func() {
		err := consumer.ConsumeEvents(func(ev *api.Event) error {
			logger.Info().
				Str("symbol", ev.Symbol).
				Uint64("sequence", ev.Sequence).
				Str("kind", ev.Kind).
				Str("order_id", ev.OrderID).
				Int("trades", len(ev.Trades)).
				Msg("Received event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()
	return consumer, nil
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.LogFormat == "pretty" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// serve starts both servers. The first serve error is sent on the returned channel.
func (a *app) serve(ctx context.Context, grpcLis, httpLis net.Listener) <-chan error {
	logger := logging.FromContext(ctx)
	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", grpcLis.Addr().String()).Msg("Starting gRPC server")
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	go func() {
		logger.Info().Str("addr", httpLis.Addr().String()).Msg("Starting HTTP server")
		if err := a.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	return errCh
}

// shutdown stops the front ends before closing the publishers so no event is
// published into a closed sink
func (a *app) shutdown(ctx context.Context) {
	logger := logging.FromContext(ctx)

	a.grpcServer.GracefulStop()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	a.hub.Close()
	a.close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	a.closers = nil
}
