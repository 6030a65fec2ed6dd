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
	"github.com/angelmondragon/retailops-backend/pkg/bootstrap"
	"github.com/angelmondragon/retailops-backend/pkg/kafka"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

const serviceKind = "outbox-publisher"

func main() {
	if err := run(); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "outbox publisher exited", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceKind, bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "shutdown", err)
		}
	}()
	cfg := rt.Config

	events, err := registry.NewEventRegistry(cfg.Kafka.Topic)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	pub, err := buildPublisher(ctx, rt)
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        rt.Logger,
		DB:            rt.DB,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		Registry:      events,
		Publisher:     pub,
		DLQRepository: outbox.NewDLQRepository(rt.DB.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	ctx = rt.Scope(ctx, map[string]any{"outboxMode": pub.Name()})
	rt.Logger.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

// buildPublisher hands rows to kafka in kafka mode and to the in-process
// inventory handlers otherwise.
func buildPublisher(ctx context.Context, rt *bootstrap.Runtime) (publisher, error) {
	cfg := rt.Config
	if cfg.Outbox.UsesKafka() {
		producer, err := kafka.NewWriter(ctx, cfg.Kafka, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("kafka writer: %w", err)
		}
		rt.OnClose("kafka writer", producer.Close)
		return newKafkaPublisher(producer)
	}

	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(rt.DB.DB()),
		DB:         rt.DB,
		Logger:     rt.Logger,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Config:     cfg.Inventory,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}
	handlers, err := inventory.NewHandlers(ledger, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("inventory handlers: %w", err)
	}
	handler, err := inventory.NewEventHandler(handlers)
	if err != nil {
		return nil, fmt.Errorf("inventory event handler: %w", err)
	}
	return newDispatchPublisher(handler, rt.Logger)
}
