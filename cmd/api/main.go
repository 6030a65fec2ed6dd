package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/retailops-backend/api/controllers"
	"github.com/angelmondragon/retailops-backend/api/routes"
	"github.com/angelmondragon/retailops-backend/internal/catalog"
	"github.com/angelmondragon/retailops-backend/internal/integrations"
	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/internal/purchasing"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/intake"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/trendyol"
	"github.com/angelmondragon/retailops-backend/pkg/bootstrap"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/idempotency"
)

const serviceKind = "api"

func main() {
	if err := run(); err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "api exited", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	rt, err := bootstrap.Start(ctx, serviceKind, bootstrap.WithRedis(), bootstrap.WithDevMigrations())
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error(context.Background(), "shutdown", err)
		}
	}()

	handler, err := buildRouter(rt)
	if err != nil {
		return err
	}

	cfg := rt.Config
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = rt.Scope(ctx, map[string]any{"addr": addr})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		rt.Logger.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-runCtx.Done():
	}

	rt.Logger.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildRouter wires every service behind the HTTP routes.
func buildRouter(rt *bootstrap.Runtime) (http.Handler, error) {
	cfg, logg, dbClient := rt.Config, rt.Logger, rt.DB
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledger, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Logger:     logg,
		Metrics:    metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Config:     cfg.Inventory,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}
	catalogSvc, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Outbox:     outboxSvc,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	purchasingSvc, err := purchasing.NewService(purchasing.ServiceParams{
		Repository: purchasing.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Ledger:     ledger,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("purchasing service: %w", err)
	}
	integrationSvc, err := integrations.NewService(integrations.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("integrations service: %w", err)
	}

	orderIntake, err := intake.New(catalogSvc, ordersSvc, cfg.Webhooks.DefaultLocation)
	if err != nil {
		return nil, fmt.Errorf("webhook intake: %w", err)
	}
	trendyolSvc, err := trendyol.NewService(orderIntake, logg)
	if err != nil {
		return nil, fmt.Errorf("trendyol webhooks: %w", err)
	}
	shopifySvc, err := shopify.NewService(orderIntake, logg)
	if err != nil {
		return nil, fmt.Errorf("shopify webhooks: %w", err)
	}
	dedupe, err := idempotency.NewManager(rt.Redis, cfg.Webhooks.DedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook dedupe: %w", err)
	}

	return routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Redis:  rt.Redis,
		ReadyCheck: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": rt.Redis,
		},
		Gatherer:          prometheus.DefaultGatherer,
		HTTP:              metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Inventory:         ledger,
		Catalog:           catalogSvc,
		Orders:            ordersSvc,
		Purchasing:        purchasingSvc,
		DLQ:               outbox.NewDLQService(dbClient, outboxRepo, outbox.NewDLQRepository(dbClient.DB()), logg),
		Integrations:      integrationSvc,
		TrendyolValidator: trendyol.NewValidator(integrationSvc, logg),
		Trendyol:          trendyolSvc,
		Shopify:           shopifySvc,
		WebhookDedupe:     dedupe,
	}), nil
}
