package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/retailops-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/retailops-backend/api/controllers/admin"
	catalogcontrollers "github.com/angelmondragon/retailops-backend/api/controllers/catalog"
	inventorycontrollers "github.com/angelmondragon/retailops-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/retailops-backend/api/controllers/orders"
	purchasingcontrollers "github.com/angelmondragon/retailops-backend/api/controllers/purchasing"
	webhookcontrollers "github.com/angelmondragon/retailops-backend/api/controllers/webhooks"
	"github.com/angelmondragon/retailops-backend/api/middleware"
	"github.com/angelmondragon/retailops-backend/internal/catalog"
	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/internal/orders"
	"github.com/angelmondragon/retailops-backend/internal/purchasing"
	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface is wired to. Nil services
// answer with INTERNAL_ERROR instead of panicking.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	Redis      *redis.Client
	ReadyCheck map[string]controllers.Pinger
	Gatherer   prometheus.Gatherer
	HTTP       *metrics.HTTPMetrics

	Inventory    inventory.Service
	Catalog      catalog.Service
	Orders       orders.Service
	Purchasing   purchasing.Service
	DLQ          admincontrollers.DLQService
	Integrations admincontrollers.IntegrationService

	TrendyolValidator webhookcontrollers.KeyValidator
	Trendyol          webhookcontrollers.PackageHandler
	Shopify           webhookcontrollers.TopicHandler
	WebhookDedupe     webhookcontrollers.DeliveryGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTP),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps.ReadyCheck))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhooks",
		cfg.Webhooks.RateLimitWindow,
		cfg.Webhooks.RateLimitPerIP,
	)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(webhookPolicy, deps.Redis, logg))
		}
		r.Post("/trendyol", webhookcontrollers.Trendyol(deps.TrendyolValidator, deps.Trendyol, logg))
		r.Post("/shopify", webhookcontrollers.Shopify(cfg.Webhooks.ShopifySecret, deps.WebhookDedupe, deps.Shopify, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor())
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/stock", inventorycontrollers.StockLevel(deps.Inventory, logg))
			r.Get("/movements", inventorycontrollers.Movements(deps.Inventory, logg))
			r.Get("/reconciliation", inventorycontrollers.Reconcile(deps.Inventory, logg))
			r.Post("/adjustments", inventorycontrollers.Adjust(deps.Inventory, logg))
			r.Post("/transfers", inventorycontrollers.Transfer(deps.Inventory, logg))
		})

		r.Route("/variants", func(r chi.Router) {
			r.Post("/", catalogcontrollers.CreateVariant(deps.Catalog, logg))
			r.Get("/lookup", catalogcontrollers.LookupVariant(deps.Catalog, logg))
			r.Get("/{variantId}", catalogcontrollers.GetVariant(deps.Catalog, logg))
		})

		r.Route("/locations", func(r chi.Router) {
			r.Post("/", catalogcontrollers.CreateLocation(deps.Catalog, logg))
			r.Get("/", catalogcontrollers.ListLocations(deps.Catalog, logg))
			r.Get("/{locationId}", catalogcontrollers.GetLocation(deps.Catalog, logg))
			r.Patch("/{locationId}", catalogcontrollers.SetLocationStatus(deps.Catalog, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderId}/returns", ordercontrollers.RequestReturn(deps.Orders, logg))
		})
		r.Post("/returns/{returnId}/complete", ordercontrollers.CompleteReturn(deps.Orders, logg))

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Post("/import", purchasingcontrollers.Import(deps.Purchasing, logg))
			r.Get("/{purchaseOrderId}", purchasingcontrollers.Detail(deps.Purchasing, logg))
			r.Post("/{purchaseOrderId}/receive", purchasingcontrollers.Receive(deps.Purchasing, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/dlq", admincontrollers.ListDLQ(deps.DLQ, logg))
			r.Post("/dlq/{dlqId}/replay", admincontrollers.ReplayDLQ(deps.DLQ, logg))
			r.Post("/integrations", admincontrollers.RegisterIntegration(deps.Integrations, logg))
			r.Post("/integrations/{integrationId}/deactivate", admincontrollers.DeactivateIntegration(deps.Integrations, logg))
			r.Get("/channels/{channel}/integration", admincontrollers.ActiveIntegration(deps.Integrations, logg))
		})
	})

	return r
}
