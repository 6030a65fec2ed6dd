package trendyol

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

const (
	HeaderAPIKey         = "X-Api-Key"
	HeaderTrendyolAPIKey = "X-Trendyol-Api-Key"
	QueryAPIKey          = "api_key"
)

type secretSource interface {
	Active(ctx context.Context, channel enums.SalesChannel) (*models.Integration, error)
}

// Validator authenticates Trendyol webhook calls against the active
// integration secret.
type Validator struct {
	source secretSource
	logg   *logger.Logger
}

func NewValidator(source secretSource, logg *logger.Logger) *Validator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Validator{source: source, logg: logg}
}

// ValidateKey reports whether the request carries the configured secret.
// The key is taken from the first source present: the API key headers, the
// api_key query parameter, then a bearer token. Without an active
// integration, or with an empty secret, every request is rejected.
func (v *Validator) ValidateKey(ctx context.Context, r *http.Request) bool {
	if v == nil || v.source == nil || r == nil {
		return false
	}
	integration, err := v.source.Active(ctx, enums.ChannelTrendyol)
	if err != nil {
		v.logg.Error(ctx, "trendyol integration lookup failed", err)
		return false
	}
	if integration == nil || integration.Secret == "" {
		v.logg.Warn(ctx, "trendyol webhook rejected: no active integration secret")
		return false
	}
	supplied := SuppliedKey(r)
	if supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(integration.Secret)) == 1
}

// SuppliedKey extracts the caller's key in priority order.
func SuppliedKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if key := r.Header.Get(HeaderTrendyolAPIKey); key != "" {
		return key
	}
	if key := r.URL.Query().Get(QueryAPIKey); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
