package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/dbtest"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

func newLedger(t *testing.T, client *db.Client, cfg config.InventoryConfig) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		DB:         client,
		Config:     cfg,
	})
	require.NoError(t, err)
	return svc
}

func onHand(t *testing.T, client *db.Client, key StockKey) int {
	t.Helper()
	var level models.StockLevel
	err := client.DB().Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID).Take(&level).Error
	require.NoError(t, err)
	return level.OnHand
}

func movementCount(t *testing.T, client *db.Client, key StockKey) int64 {
	t.Helper()
	var count int64
	err := client.DB().Model(&models.InventoryMovement{}).
		Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestApplyMovementKeepsOnHandEqualToMovementSum(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 10)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	inputs := []MovementInput{
		{Type: enums.MovementSale, Quantity: 3},
		{Type: enums.MovementPurchaseReceived, Quantity: 20},
		{Type: enums.MovementDamaged, Quantity: 2},
		{Type: enums.MovementAdjustment, Quantity: 4, Direction: DirectionOut},
		{Type: enums.MovementAdjustment, Quantity: 1, Direction: DirectionIn},
		{Type: enums.MovementReturn, Quantity: 1},
		{Type: enums.MovementSale, Quantity: 500}, // rejected, contributes nothing
		{Type: enums.MovementCancellation, Quantity: 2},
	}
	expected := 10
	for _, input := range inputs {
		input.VariantID = variant.ID
		input.LocationID = location.ID
		movement, err := svc.ApplyMovement(ctx, input)
		if err != nil {
			require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "unexpected error: %v", err)
			continue
		}
		expected += movement.QuantityDelta
		require.Equal(t, expected, movement.BalanceAfter)
	}

	require.Equal(t, 25, expected)
	require.Equal(t, expected, onHand(t, client, key))
	require.EqualValues(t, 7, movementCount(t, client, key))

	result, err := svc.Reconcile(ctx, key)
	require.NoError(t, err)
	require.True(t, result.InSync())
	require.EqualValues(t, 10, result.Opening)
	require.EqualValues(t, 15, result.MovementSum)
}

func TestApplyMovementCreatesMissingStockLevel(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	svc := newLedger(t, client, config.InventoryConfig{})

	movement, err := svc.ApplyMovement(context.Background(), MovementInput{
		VariantID:  variant.ID,
		LocationID: location.ID,
		Type:       enums.MovementPurchaseReceived,
		Quantity:   12,
	})
	require.NoError(t, err)
	require.Equal(t, 12, movement.QuantityDelta)
	require.Equal(t, 12, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: location.ID}))
}

func TestApplyMovementInsufficientStockWritesNothing(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 5)
	svc := newLedger(t, client, config.InventoryConfig{})
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		VariantID:  variant.ID,
		LocationID: location.ID,
		Type:       enums.MovementSale,
		Quantity:   6,
	})
	require.Error(t, err)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	require.ErrorIs(t, err, ErrInsufficientStock)

	require.Equal(t, 5, onHand(t, client, key))
	require.Zero(t, movementCount(t, client, key))
}

func TestApplyMovementAllowsBackorderWhenEnabled(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 5)
	svc := newLedger(t, client, config.InventoryConfig{AllowBackorder: true})

	movement, err := svc.ApplyMovement(context.Background(), MovementInput{
		VariantID:  variant.ID,
		LocationID: location.ID,
		Type:       enums.MovementSale,
		Quantity:   6,
	})
	require.NoError(t, err)
	require.Equal(t, -1, movement.BalanceAfter)
}

func TestApplyMovementRejectsDuplicateReference(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 10)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	input := MovementInput{
		VariantID:  variant.ID,
		LocationID: location.ID,
		Type:       enums.MovementSale,
		Quantity:   2,
		Reference:  Reference{Type: enums.ReferenceOrderItem, ID: uuid.NewString()},
	}
	_, err := svc.ApplyMovement(ctx, input)
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateMovement)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	require.Equal(t, 8, onHand(t, client, key))
	require.EqualValues(t, 1, movementCount(t, client, key))

	applied, err := svc.HasApplied(ctx, input.Reference, enums.MovementSale)
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = svc.HasApplied(ctx, input.Reference, enums.MovementCancellation)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestApplyMovementValidation(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	svc := newLedger(t, client, config.InventoryConfig{})

	cases := []struct {
		name  string
		input MovementInput
		code  pkgerrors.Code
	}{
		{
			name:  "zero quantity",
			input: MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementSale},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "unknown type",
			input: MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: "shrinkage", Quantity: 1},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "adjustment without direction",
			input: MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementAdjustment, Quantity: 1},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "direction contradicts sale",
			input: MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementSale, Quantity: 1, Direction: DirectionIn},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "reference without id",
			input: MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementReturn, Quantity: 1, Reference: Reference{Type: enums.ReferenceOrderReturn}},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "missing variant",
			input: MovementInput{VariantID: uuid.New(), LocationID: location.ID, Type: enums.MovementReturn, Quantity: 1},
			code:  pkgerrors.CodeNotFound,
		},
		{
			name:  "missing location",
			input: MovementInput{VariantID: variant.ID, LocationID: uuid.New(), Type: enums.MovementReturn, Quantity: 1},
			code:  pkgerrors.CodeNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyMovement(context.Background(), tc.input)
			require.Error(t, err)
			require.Equal(t, tc.code, pkgerrors.As(err).Code())
		})
	}
}

func TestConcurrentDeductionsDoNotLoseUpdates(t *testing.T) {
	const n = 25

	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, n)
	svc := newLedger(t, client, config.InventoryConfig{})
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	var wg sync.WaitGroup
	errs := make(chan error, n+1)
	for i := 0; i < n+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyMovement(context.Background(), MovementInput{
				VariantID:  variant.ID,
				LocationID: location.ID,
				Type:       enums.MovementSale,
				Quantity:   1,
				Reference:  Reference{Type: enums.ReferenceOrderItem, ID: uuid.NewString()},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "unexpected error: %v", err)
			failures++
		}
	}
	require.Equal(t, 1, failures)
	require.Equal(t, 0, onHand(t, client, key))
	require.EqualValues(t, n, movementCount(t, client, key))
}

func TestTransferMovesStockBetweenLocations(t *testing.T) {
	client := dbtest.New(t)
	variant, from := dbtest.SeedKey(t, client)
	to := models.Location{Code: "LOC-" + uuid.NewString()[:8], Name: "Second", IsActive: true}
	require.NoError(t, client.DB().Create(&to).Error)
	dbtest.SeedStock(t, client, variant.ID, from.ID, 7)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()

	result, err := svc.Transfer(ctx, TransferInput{
		TransferID:     "TR-1",
		VariantID:      variant.ID,
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
		Quantity:       4,
	})
	require.NoError(t, err)
	require.Equal(t, -4, result.Out.QuantityDelta)
	require.Equal(t, 4, result.In.QuantityDelta)
	require.Equal(t, "TR-1", *result.Out.ReferenceID)

	require.Equal(t, 3, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: from.ID}))
	require.Equal(t, 4, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: to.ID}))

	// the second leg is never written alone
	_, err = svc.Transfer(ctx, TransferInput{
		VariantID:      variant.ID,
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
		Quantity:       10,
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, 4, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: to.ID}))

	_, err = svc.Transfer(ctx, TransferInput{VariantID: variant.ID, FromLocationID: from.ID, ToLocationID: from.ID, Quantity: 1})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListMovementsPaginatesNewestFirst(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	for i := 1; i <= 5; i++ {
		_, err := svc.ApplyMovement(ctx, MovementInput{
			VariantID:  variant.ID,
			LocationID: location.ID,
			Type:       enums.MovementPurchaseReceived,
			Quantity:   i,
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	first, err := svc.ListMovements(ctx, key, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Movements, 3)
	require.NotEmpty(t, first.NextCursor)
	require.Equal(t, 5, first.Movements[0].QuantityDelta)

	second, err := svc.ListMovements(ctx, key, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Movements, 2)
	require.Empty(t, second.NextCursor)
	require.Equal(t, 1, second.Movements[1].QuantityDelta)

	_, err = svc.ListMovements(ctx, key, pagination.Params{Cursor: "###"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReconcileReportsDrift(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 4)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	_, err := svc.ApplyMovement(ctx, MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementSale, Quantity: 1})
	require.NoError(t, err)

	// simulate an out-of-band write
	require.NoError(t, client.DB().Model(&models.StockLevel{}).
		Where("variant_id = ? AND location_id = ?", variant.ID, location.ID).
		Update("on_hand", 9).Error)

	result, err := svc.Reconcile(ctx, key)
	require.NoError(t, err)
	require.False(t, result.InSync())
	require.EqualValues(t, 6, result.Drift)
	require.Equal(t, 9, onHand(t, client, key))
}

func TestGetStockLevelReportsZeroForUnsetKey(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	svc := newLedger(t, client, config.InventoryConfig{})

	view, err := svc.GetStockLevel(context.Background(), StockKey{VariantID: variant.ID, LocationID: location.ID})
	require.NoError(t, err)
	require.Zero(t, view.OnHand)
	require.Nil(t, view.UpdatedAt)

	_, err = svc.GetStockLevel(context.Background(), StockKey{VariantID: uuid.New(), LocationID: location.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestWithRetryGivesUpOnPersistentConflict(t *testing.T) {
	client := dbtest.New(t)
	svc := newLedger(t, client, config.InventoryConfig{MaxAttempts: 3, RetryBaseDelay: time.Millisecond}).(*service)

	calls := 0
	err := svc.withRetry(context.Background(), nil, func(_ *gorm.DB) error {
		calls++
		return errConcurrentUpdate
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	require.True(t, errors.Is(err, errConcurrentUpdate))
}

func TestReconcileOrdersHistoryBySequence(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 10)
	svc := newLedger(t, client, config.InventoryConfig{})
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	first, err := svc.ApplyMovement(ctx, MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementSale, Quantity: 3})
	require.NoError(t, err)
	second, err := svc.ApplyMovement(ctx, MovementInput{VariantID: variant.ID, LocationID: location.ID, Type: enums.MovementPurchaseReceived, Quantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Sequence)
	require.EqualValues(t, 2, second.Sequence)

	// clock skew between writers: the later movement carries the earlier timestamp
	require.NoError(t, client.DB().Model(&models.InventoryMovement{}).
		Where("id = ?", second.ID).
		Update("created_at", first.CreatedAt.Add(-time.Minute)).Error)

	result, err := svc.Reconcile(ctx, key)
	require.NoError(t, err)
	require.True(t, result.InSync(), "drift %d", result.Drift)
	require.EqualValues(t, 10, result.Opening)
	require.EqualValues(t, 12, result.OnHand)

	var level models.StockLevel
	require.NoError(t, client.DB().Where("variant_id = ? AND location_id = ?", variant.ID, location.ID).Take(&level).Error)
	require.EqualValues(t, 2, level.Version)
}
