package inventory

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/api/responses"
	"github.com/angelmondragon/retailops-backend/api/validators"
	internalinventory "github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

// adjustmentRequest is a manual stock correction. Only adjustment and damaged
// movements may be booked by hand; sales, returns and receipts come from
// their own workflows.
type adjustmentRequest struct {
	VariantID   uuid.UUID  `json:"variant_id" validate:"required"`
	LocationID  uuid.UUID  `json:"location_id" validate:"required"`
	Type        string     `json:"type" validate:"required,oneof=adjustment damaged"`
	Quantity    int        `json:"quantity" validate:"gt=0"`
	Direction   string     `json:"direction,omitempty" validate:"omitempty,oneof=in out"`
	ReferenceID *string    `json:"reference_id,omitempty" validate:"omitempty,max=128"`
	Note        *string    `json:"note,omitempty" validate:"omitempty,max=500"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
}

type transferRequest struct {
	TransferID     string     `json:"transfer_id,omitempty" validate:"omitempty,max=128"`
	VariantID      uuid.UUID  `json:"variant_id" validate:"required"`
	FromLocationID uuid.UUID  `json:"from_location_id" validate:"required"`
	ToLocationID   uuid.UUID  `json:"to_location_id" validate:"required"`
	Quantity       int        `json:"quantity" validate:"gt=0"`
	Note           *string    `json:"note,omitempty" validate:"omitempty,max=500"`
	OccurredAt     *time.Time `json:"occurred_at,omitempty"`
}

type adjustmentResponse struct {
	Applied  bool                            `json:"applied"`
	Movement *internalinventory.MovementView `json:"movement,omitempty"`
}

// StockLevel returns on-hand stock for one (variant, location) key.
func StockLevel(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		key, err := parseKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := svc.GetStockLevel(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, level)
	}
}

// Movements pages through the movement history of a key, newest first.
func Movements(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		key, err := parseKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		list, err := svc.ListMovements(r.Context(), key, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Adjust books a manual adjustment or damaged movement. Repeating a request
// with the same reference_id is a no-op reported as applied=false.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		var body adjustmentRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movementType := enums.MovementType(body.Type)
		input := internalinventory.MovementInput{
			VariantID:  body.VariantID,
			LocationID: body.LocationID,
			Type:       movementType,
			Quantity:   body.Quantity,
			Direction:  parseDirection(body.Direction),
			Note:       body.Note,
		}
		if body.OccurredAt != nil {
			input.OccurredAt = body.OccurredAt.UTC()
		}
		if body.ReferenceID != nil && strings.TrimSpace(*body.ReferenceID) != "" {
			input.Reference = internalinventory.Reference{Type: enums.ReferenceManual, ID: strings.TrimSpace(*body.ReferenceID)}
		}

		movement, err := svc.ApplyMovement(r.Context(), input)
		if errors.Is(err, internalinventory.ErrDuplicateMovement) {
			responses.WriteSuccess(w, adjustmentResponse{Applied: false})
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := internalinventory.NewMovementView(*movement)
		responses.WriteCreated(w, adjustmentResponse{Applied: true, Movement: &view})
	}
}

// Transfer moves stock between two locations atomically.
func Transfer(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		var body transferRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalinventory.TransferInput{
			TransferID:     body.TransferID,
			VariantID:      body.VariantID,
			FromLocationID: body.FromLocationID,
			ToLocationID:   body.ToLocationID,
			Quantity:       body.Quantity,
			Note:           body.Note,
		}
		if body.OccurredAt != nil {
			input.OccurredAt = body.OccurredAt.UTC()
		}
		result, err := svc.Transfer(r.Context(), input)
		if errors.Is(err, internalinventory.ErrDuplicateMovement) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transfer already applied"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, map[string]internalinventory.MovementView{
			"out": internalinventory.NewMovementView(result.Out),
			"in":  internalinventory.NewMovementView(result.In),
		})
	}
}

// Reconcile compares a stock level with its movement history without changing it.
func Reconcile(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		key, err := parseKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"result":  result,
			"in_sync": result.InSync(),
		})
	}
}

func parseKey(r *http.Request) (internalinventory.StockKey, error) {
	variantID, err := validators.ParseQueryUUID(r, "variant_id", true)
	if err != nil {
		return internalinventory.StockKey{}, err
	}
	locationID, err := validators.ParseQueryUUID(r, "location_id", true)
	if err != nil {
		return internalinventory.StockKey{}, err
	}
	return internalinventory.StockKey{VariantID: variantID, LocationID: locationID}, nil
}

func parseDirection(raw string) internalinventory.Direction {
	switch raw {
	case "in":
		return internalinventory.DirectionIn
	case "out":
		return internalinventory.DirectionOut
	}
	return internalinventory.DirectionNone
}
