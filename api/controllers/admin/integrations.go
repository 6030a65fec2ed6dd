package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/api/responses"
	"github.com/angelmondragon/retailops-backend/api/validators"
	"github.com/angelmondragon/retailops-backend/internal/integrations"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

type IntegrationService interface {
	Register(ctx context.Context, input integrations.RegisterInput) (*models.Integration, error)
	Active(ctx context.Context, channel enums.SalesChannel) (*models.Integration, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// integrationResponse never carries the secret.
type integrationResponse struct {
	ID        uuid.UUID          `json:"id"`
	Channel   enums.SalesChannel `json:"channel"`
	Name      string             `json:"name"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
}

func newIntegrationResponse(i *models.Integration) integrationResponse {
	return integrationResponse{
		ID:        i.ID,
		Channel:   i.Channel,
		Name:      i.Name,
		IsActive:  i.IsActive,
		CreatedAt: i.CreatedAt,
	}
}

func RegisterIntegration(svc IntegrationService, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}
		var body integrations.RegisterInput
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		integration, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithFields(r.Context(), map[string]any{
			"integration_id": integration.ID.String(),
			"channel":        integration.Channel,
		})
		logg.Info(ctx, "integration registered")
		responses.WriteCreated(w, newIntegrationResponse(integration))
	}
}

// ActiveIntegration reports the integration webhooks of {channel} are checked against.
func ActiveIntegration(svc IntegrationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}
		channel, err := enums.ParseSalesChannel(chi.URLParam(r, "channel"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel"))
			return
		}
		integration, err := svc.Active(r.Context(), channel)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if integration == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no active integration for channel"))
			return
		}
		responses.WriteSuccess(w, newIntegrationResponse(integration))
	}
}

func DeactivateIntegration(svc IntegrationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "integrationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "is_active": false})
	}
}
