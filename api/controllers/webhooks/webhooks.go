package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/retailops-backend/api/responses"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/retailops-backend/internal/webhooks/trendyol"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

const (
	maxWebhookBodyBytes = 2 << 20

	headerShopifyHmac      = "X-Shopify-Hmac-Sha256"
	headerShopifyTopic     = "X-Shopify-Topic"
	headerShopifyWebhookID = "X-Shopify-Webhook-Id"

	shopifyConsumer = "webhook.shopify"
)

type KeyValidator interface {
	ValidateKey(ctx context.Context, r *http.Request) bool
}

type PackageHandler interface {
	HandlePackage(ctx context.Context, event trendyol.PackageEvent) error
}

type TopicHandler interface {
	HandleTopic(ctx context.Context, topic string, body []byte) error
}

// DeliveryGuard is satisfied by *idempotency.Manager.
type DeliveryGuard interface {
	Once(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (bool, error)
}

// Trendyol accepts shipment package events authenticated by the active
// integration key.
func Trendyol(validator KeyValidator, svc PackageHandler, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithField(r.Context(), "channel", "trendyol")
		if validator == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "trendyol webhook not configured"))
			return
		}
		if !validator.ValidateKey(ctx, r) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook key"))
			return
		}

		var event trendyol.PackageEvent
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err := decoder.Decode(&event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid package event"))
			return
		}
		if err := svc.HandlePackage(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}

// Shopify verifies the HMAC over the raw body before decoding anything.
// Redeliveries of one webhook id are acknowledged without reprocessing.
func Shopify(secret string, guard DeliveryGuard, svc TopicHandler, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithField(r.Context(), "channel", "shopify")
		if svc == nil || strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shopify webhook not configured"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}
		if !shopify.VerifySignature(secret, body, r.Header.Get(headerShopifyHmac)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		topic := strings.TrimSpace(r.Header.Get(headerShopifyTopic))
		webhookID := strings.TrimSpace(r.Header.Get(headerShopifyWebhookID))
		ctx = logg.WithFields(ctx, map[string]any{"topic": topic, "webhook_id": webhookID})

		handle := func(ctx context.Context) error { return svc.HandleTopic(ctx, topic, body) }
		if guard == nil || webhookID == "" {
			// order external ids still dedupe at the database
			if err := handle(ctx); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"received": true})
			return
		}

		ran, err := guard.Once(ctx, shopifyConsumer, webhookID, handle)
		if err != nil {
			if !ran {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe unavailable")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !ran {
			logg.Info(ctx, "shopify webhook redelivery acknowledged")
		}
		responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": !ran})
	}
}
