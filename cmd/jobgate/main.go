package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/glimte/jobgate/config"
	"github.com/glimte/jobgate/gateway"
	"github.com/glimte/jobgate/health"
	"github.com/glimte/jobgate/internal/rabbitmq"
	"github.com/glimte/jobgate/metrics"
)

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})
	logger := slog.New(handler)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logger.With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	m := metrics.New()

	var policy rabbitmq.RetryPolicy
	switch cfg.Broker.RetryStrategy {
	case config.RetryStrategyBackoff:
		policy = rabbitmq.NewExponentialBackoff(cfg.Broker.RetryDelay, cfg.Broker.RetryMaxDelay, 2.0, -1)
	default:
		policy = rabbitmq.NewFixedDelay(cfg.Broker.RetryDelay, -1)
	}
	scheduler := rabbitmq.NewTimerScheduler(policy, rabbitmq.WithSchedulerLogger(logger))

	topology := rabbitmq.Topology{
		Exchange:   cfg.Broker.Exchange,
		Queue:      cfg.Broker.Queue,
		RoutingKey: cfg.Broker.RoutingKey,
	}
	manager := rabbitmq.NewConnectionManager(cfg.Broker.URL, topology, scheduler,
		rabbitmq.WithLogger(logger),
		rabbitmq.WithConnectionMetrics(m),
	)
	publisher := rabbitmq.NewPublisher(manager, cfg.Broker.Exchange, cfg.Broker.RoutingKey, scheduler,
		rabbitmq.WithPublisherLogger(logger),
		rabbitmq.WithPublisherMetrics(m),
	)

	// A broker that is down at startup is not fatal; recovery is scheduled.
	if err := manager.Setup(); err != nil {
		logger.Warn("broker not ready at startup, retrying in background", "error", err)
	}

	registry := health.NewRegistry()
	registry.SetMetadata("service", cfg.ServiceName)
	registry.Register(health.NewBrokerChecker(manager))

	srv := gateway.NewServer(cfg, publisher, registry, m, logger)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting job gateway", "addr", cfg.Addr())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Error("server error", "error", err)
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}

	scheduler.Close()
	if err := manager.Close(); err != nil {
		logger.Error("error closing broker connection", "error", err)
	}

	logger.Info("gateway stopped")
}
