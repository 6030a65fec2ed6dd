package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	internalinventory "github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

type stubInventoryService struct {
	apply     func(ctx context.Context, input internalinventory.MovementInput) (*models.InventoryMovement, error)
	transfer  func(ctx context.Context, input internalinventory.TransferInput) (*internalinventory.TransferResult, error)
	level     func(ctx context.Context, key internalinventory.StockKey) (*internalinventory.StockLevelView, error)
	movements func(ctx context.Context, key internalinventory.StockKey, params pagination.Params) (*internalinventory.MovementList, error)
	reconcile func(ctx context.Context, key internalinventory.StockKey) (*internalinventory.ReconcileResult, error)
}

func (s *stubInventoryService) ApplyMovement(ctx context.Context, input internalinventory.MovementInput) (*models.InventoryMovement, error) {
	return s.apply(ctx, input)
}

func (s *stubInventoryService) Transfer(ctx context.Context, input internalinventory.TransferInput) (*internalinventory.TransferResult, error) {
	return s.transfer(ctx, input)
}

func (s *stubInventoryService) HasApplied(context.Context, internalinventory.Reference, enums.MovementType) (bool, error) {
	panic("not implemented")
}

func (s *stubInventoryService) VoidIfUnapplied(context.Context, internalinventory.VoidInput) (bool, error) {
	panic("not implemented")
}

func (s *stubInventoryService) GetStockLevel(ctx context.Context, key internalinventory.StockKey) (*internalinventory.StockLevelView, error) {
	return s.level(ctx, key)
}

func (s *stubInventoryService) ListMovements(ctx context.Context, key internalinventory.StockKey, params pagination.Params) (*internalinventory.MovementList, error) {
	return s.movements(ctx, key, params)
}

func (s *stubInventoryService) Reconcile(ctx context.Context, key internalinventory.StockKey) (*internalinventory.ReconcileResult, error) {
	return s.reconcile(ctx, key)
}

func keyQuery(variantID, locationID uuid.UUID) string {
	return fmt.Sprintf("variant_id=%s&location_id=%s", variantID, locationID)
}

func TestStockLevelRequiresKey(t *testing.T) {
	handler := StockLevel(&stubInventoryService{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/stock?variant_id="+uuid.NewString(), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockLevelReturnsView(t *testing.T) {
	variantID, locationID := uuid.New(), uuid.New()
	svc := &stubInventoryService{
		level: func(_ context.Context, key internalinventory.StockKey) (*internalinventory.StockLevelView, error) {
			require.Equal(t, variantID, key.VariantID)
			require.Equal(t, locationID, key.LocationID)
			return &internalinventory.StockLevelView{VariantID: variantID, LocationID: locationID, OnHand: 7}, nil
		},
	}
	rec := httptest.NewRecorder()
	StockLevel(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/stock?"+keyQuery(variantID, locationID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data internalinventory.StockLevelView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, 7, payload.Data.OnHand)
}

func TestMovementsPassesPagination(t *testing.T) {
	variantID, locationID := uuid.New(), uuid.New()
	var got pagination.Params
	svc := &stubInventoryService{
		movements: func(_ context.Context, _ internalinventory.StockKey, params pagination.Params) (*internalinventory.MovementList, error) {
			got = params
			return &internalinventory.MovementList{NextCursor: "next"}, nil
		},
	}
	url := "/api/v1/inventory/movements?" + keyQuery(variantID, locationID) + "&limit=10&cursor=abc"
	rec := httptest.NewRecorder()
	Movements(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, got)
	require.Contains(t, rec.Body.String(), `"next_cursor":"next"`)
}

func TestAdjustMapsRequestOntoMovement(t *testing.T) {
	variantID, locationID := uuid.New(), uuid.New()
	var got internalinventory.MovementInput
	svc := &stubInventoryService{
		apply: func(_ context.Context, input internalinventory.MovementInput) (*models.InventoryMovement, error) {
			got = input
			return &models.InventoryMovement{
				ID:            uuid.New(),
				VariantID:     variantID,
				LocationID:    locationID,
				Type:          input.Type,
				QuantityDelta: -3,
				BalanceAfter:  4,
				OccurredAt:    time.Now().UTC(),
			}, nil
		},
	}
	body := fmt.Sprintf(`{"variant_id":%q,"location_id":%q,"type":"adjustment","quantity":3,"direction":"out","reference_id":"count-42"}`, variantID, locationID)
	rec := httptest.NewRecorder()
	Adjust(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/adjustments", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, enums.MovementAdjustment, got.Type)
	require.Equal(t, internalinventory.DirectionOut, got.Direction)
	require.Equal(t, internalinventory.Reference{Type: enums.ReferenceManual, ID: "count-42"}, got.Reference)
	require.Contains(t, rec.Body.String(), `"balance_after":4`)
}

func TestAdjustRejectsWorkflowMovementTypes(t *testing.T) {
	body := fmt.Sprintf(`{"variant_id":%q,"location_id":%q,"type":"sale","quantity":1}`, uuid.New(), uuid.New())
	rec := httptest.NewRecorder()
	Adjust(&stubInventoryService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/adjustments", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"type":"must be one of adjustment damaged"`)
}

func TestAdjustDuplicateReferenceIsNotAFailure(t *testing.T) {
	svc := &stubInventoryService{
		apply: func(context.Context, internalinventory.MovementInput) (*models.InventoryMovement, error) {
			return nil, internalinventory.ErrDuplicateMovement
		},
	}
	body := fmt.Sprintf(`{"variant_id":%q,"location_id":%q,"type":"damaged","quantity":1,"reference_id":"r1"}`, uuid.New(), uuid.New())
	rec := httptest.NewRecorder()
	Adjust(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/adjustments", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"applied":false`)
}

func TestAdjustInsufficientStockIsConflict(t *testing.T) {
	svc := &stubInventoryService{
		apply: func(context.Context, internalinventory.MovementInput) (*models.InventoryMovement, error) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, internalinventory.ErrInsufficientStock, "only 1 on hand")
		},
	}
	body := fmt.Sprintf(`{"variant_id":%q,"location_id":%q,"type":"damaged","quantity":5}`, uuid.New(), uuid.New())
	rec := httptest.NewRecorder()
	Adjust(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/adjustments", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), string(pkgerrors.CodeInsufficientStock))
}

func TestTransferReturnsBothLegs(t *testing.T) {
	variantID, from, to := uuid.New(), uuid.New(), uuid.New()
	svc := &stubInventoryService{
		transfer: func(_ context.Context, input internalinventory.TransferInput) (*internalinventory.TransferResult, error) {
			require.Equal(t, "T-1", input.TransferID)
			return &internalinventory.TransferResult{
				Out: models.InventoryMovement{LocationID: from, QuantityDelta: -2},
				In:  models.InventoryMovement{LocationID: to, QuantityDelta: 2},
			}, nil
		},
	}
	body := fmt.Sprintf(`{"transfer_id":"T-1","variant_id":%q,"from_location_id":%q,"to_location_id":%q,"quantity":2}`, variantID, from, to)
	rec := httptest.NewRecorder()
	Transfer(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/transfers", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var payload struct {
		Data map[string]internalinventory.MovementView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, -2, payload.Data["out"].QuantityDelta)
	require.Equal(t, 2, payload.Data["in"].QuantityDelta)
}

func TestReconcileReportsDrift(t *testing.T) {
	variantID, locationID := uuid.New(), uuid.New()
	svc := &stubInventoryService{
		reconcile: func(context.Context, internalinventory.StockKey) (*internalinventory.ReconcileResult, error) {
			return &internalinventory.ReconcileResult{OnHand: 5, MovementSum: 4, Drift: 1}, nil
		},
	}
	rec := httptest.NewRecorder()
	Reconcile(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/reconciliation?"+keyQuery(variantID, locationID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"in_sync":false`)
}
