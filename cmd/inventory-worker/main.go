package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/internal/inventory/consumer"
	"github.com/angelmondragon/retailops-backend/pkg/bootstrap"
	"github.com/angelmondragon/retailops-backend/pkg/kafka"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

func main() {
	if err := run(); err != nil {
		logger.New(logger.Options{ServiceName: consumer.Name}).Error(context.Background(), "inventory worker exited", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, consumer.Name, bootstrap.WithRedis())
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "shutdown", err)
		}
	}()
	cfg := rt.Config

	reader, err := kafka.NewReader(ctx, cfg.Kafka, rt.Logger)
	if err != nil {
		return fmt.Errorf("kafka reader: %w", err)
	}
	rt.OnClose("kafka reader", reader.Close)

	dedupe, err := idempotency.NewManager(rt.Redis, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	events, err := registry.NewEventRegistry(cfg.Kafka.Topic)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(rt.DB.DB()),
		DB:         rt.DB,
		Logger:     rt.Logger,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Config:     cfg.Inventory,
	})
	if err != nil {
		return fmt.Errorf("inventory service: %w", err)
	}
	handlers, err := inventory.NewHandlers(ledger, rt.Logger)
	if err != nil {
		return fmt.Errorf("inventory handlers: %w", err)
	}
	handler, err := inventory.NewEventHandler(handlers)
	if err != nil {
		return fmt.Errorf("inventory event handler: %w", err)
	}

	worker, err := consumer.New(consumer.Params{
		Reader:      reader,
		Registry:    events,
		Handler:     handler,
		Idempotency: dedupe,
		DB:          rt.DB,
		DLQ:         outbox.NewDLQRepository(rt.DB.DB()),
		Logger:      rt.Logger,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		MaxAttempts: cfg.Inventory.MaxAttempts,
		RetryDelay:  cfg.Inventory.RetryBaseDelay,
	})
	if err != nil {
		return fmt.Errorf("inventory consumer: %w", err)
	}

	ctx = rt.Scope(ctx, map[string]any{"topic": cfg.Kafka.Topic})
	rt.Logger.Info(ctx, "inventory worker ready")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "inventory worker shutting down gracefully")
	return nil
}
