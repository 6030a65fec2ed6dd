package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/retailops-backend/internal/cron"
	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/bootstrap"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
)

const serviceKind = "cron-worker"

func main() {
	if err := run(); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "cron worker exited", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, serviceKind, bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "shutdown", err)
		}
	}()
	cfg := rt.Config

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey(serviceKind+":"+env), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	inventoryRepo := inventory.NewRepository(rt.DB.DB())
	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventoryRepo,
		DB:         rt.DB,
		Logger:     rt.Logger,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Config:     cfg.Inventory,
	})
	if err != nil {
		return fmt.Errorf("inventory service: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        rt.Logger,
		DB:            rt.DB,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		DLQRepository: outbox.NewDLQRepository(rt.DB.DB()),
		Retention:     cfg.Cron.OutboxRetentionDays,
		DLQRetention:  cfg.Cron.DLQRetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	reconcile, err := cron.NewStockReconciliationJob(cron.StockReconciliationJobParams{
		Logger:     rt.Logger,
		Levels:     inventoryRepo,
		Reconciler: ledger,
	})
	if err != nil {
		return fmt.Errorf("stock reconciliation job: %w", err)
	}

	jobs, err := cron.NewRegistry(retention, reconcile)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = rt.Scope(ctx, map[string]any{"jobs": len(jobs.Jobs())})
	rt.Logger.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "cron worker shutting down gracefully")
	return nil
}
