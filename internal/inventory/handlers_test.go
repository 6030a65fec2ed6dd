package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db/dbtest"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

func TestDeductForOrderItemAppliesOnce(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 10)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	event := payloads.OrderItemCreated{
		OrderItemID: uuid.New(),
		OrderID:     uuid.New(),
		VariantID:   variant.ID,
		LocationID:  location.ID,
		Quantity:    3,
	}
	outcome, err := handlers.DeductForOrderItem(ctx, event)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = handlers.DeductForOrderItem(ctx, event)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	require.Equal(t, 7, onHand(t, client, key))
	require.EqualValues(t, 1, movementCount(t, client, key))
}

func TestRestockForCancellationReversesAppliedSale(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 5)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	sale := orderItemSale(variant.ID, location.ID, 2)
	outcome, err := handlers.DeductForOrderItem(ctx, sale)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, 3, onHand(t, client, key))

	cancel := cancelFor(sale, "customer request")
	outcome, err = handlers.RestockForCancellation(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	outcome, err = handlers.RestockForCancellation(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Equal(t, 5, onHand(t, client, key))

	var movement models.InventoryMovement
	require.NoError(t, client.DB().Where("type = ?", enums.MovementCancellation).Take(&movement).Error)
	require.NotNil(t, movement.Note)
	require.Equal(t, "customer request", *movement.Note)
}

// A cancel processed before its sale (the sale was dead-lettered, retried or
// is replayed later) must leave stock untouched once both have run.
func TestCancellationBeforeSaleBlocksLaterDeduction(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 5)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	sale := orderItemSale(variant.ID, location.ID, 2)
	cancel := cancelFor(sale, "customer request")

	outcome, err := handlers.RestockForCancellation(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
	// redelivered cancel stays a no-op
	outcome, err = handlers.RestockForCancellation(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)

	outcome, err = handlers.DeductForOrderItem(ctx, sale)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)

	require.Equal(t, 5, onHand(t, client, key))
	require.Zero(t, movementCount(t, client, key))

	var void models.VoidedReference
	require.NoError(t, client.DB().Where("reference_id = ?", sale.OrderItemID.String()).Take(&void).Error)
	require.Equal(t, enums.MovementSale, void.MovementType)
	require.NotNil(t, void.Reason)
}

func TestCancellationOfUnstockedKeyStillVoids(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{AllowBackorder: true}), nil)
	require.NoError(t, err)
	ctx := context.Background()

	sale := orderItemSale(variant.ID, location.ID, 1)
	outcome, err := handlers.RestockForCancellation(ctx, cancelFor(sale, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)

	outcome, err = handlers.DeductForOrderItem(ctx, sale)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
	require.Zero(t, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: location.ID}))
}

func TestRestockForReturnWaitsForSale(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 4)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)
	handler, err := NewEventHandler(handlers)
	require.NoError(t, err)
	ctx := context.Background()
	key := StockKey{VariantID: variant.ID, LocationID: location.ID}

	sale := orderItemSale(variant.ID, location.ID, 2)
	ret := payloads.OrderReturnCompleted{
		ReturnID:    uuid.New(),
		OrderItemID: sale.OrderItemID,
		VariantID:   variant.ID,
		LocationID:  location.ID,
		Quantity:    1,
	}

	_, err = handlers.RestockForReturn(ctx, ret)
	require.ErrorIs(t, err, ErrSaleNotApplied)
	require.Equal(t, 4, onHand(t, client, key))

	// the publisher keeps it for another attempt instead of dead-lettering
	_, err = handler.Handle(ctx, resolve(t, enums.EventOrderReturnCompleted, enums.AggregateOrderReturn, ret))
	var nonRetryable registry.NonRetryableError
	require.Error(t, err)
	require.False(t, errors.As(err, &nonRetryable))

	_, err = handlers.DeductForOrderItem(ctx, sale)
	require.NoError(t, err)
	outcome, err := handlers.RestockForReturn(ctx, ret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, 3, onHand(t, client, key))
}

func TestRestockForUnlinkedReturn(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)

	event := payloads.OrderReturnCompleted{
		ReturnID:   uuid.New(),
		VariantID:  variant.ID,
		LocationID: location.ID,
		Quantity:   1,
	}
	outcome, err := handlers.RestockForReturn(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, 1, onHand(t, client, StockKey{VariantID: variant.ID, LocationID: location.ID}))

	_, err = handlers.RestockForReturn(context.Background(), payloads.OrderReturnCompleted{})
	require.Error(t, err)
}

func orderItemSale(variantID, locationID uuid.UUID, quantity int) payloads.OrderItemCreated {
	return payloads.OrderItemCreated{
		OrderItemID: uuid.New(),
		OrderID:     uuid.New(),
		VariantID:   variantID,
		LocationID:  locationID,
		Quantity:    quantity,
	}
}

func cancelFor(sale payloads.OrderItemCreated, reason string) payloads.OrderItemCanceled {
	return payloads.OrderItemCanceled{
		OrderItemID: sale.OrderItemID,
		OrderID:     sale.OrderID,
		VariantID:   sale.VariantID,
		LocationID:  sale.LocationID,
		Quantity:    sale.Quantity,
		Reason:      reason,
	}
}

func resolve(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) *registry.ResolvedEvent {
	t.Helper()
	reg, err := registry.NewEventRegistry("inventory-events")
	require.NoError(t, err)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: raw})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       payload,
	})
	require.NoError(t, err)
	return resolved
}

func TestEventHandlerClassifiesFailures(t *testing.T) {
	client := dbtest.New(t)
	variant, location := dbtest.SeedKey(t, client)
	dbtest.SeedStock(t, client, variant.ID, location.ID, 1)
	handlers, err := NewHandlers(newLedger(t, client, config.InventoryConfig{}), nil)
	require.NoError(t, err)
	handler, err := NewEventHandler(handlers)
	require.NoError(t, err)
	ctx := context.Background()

	created := payloads.OrderItemCreated{
		OrderItemID: uuid.New(),
		OrderID:     uuid.New(),
		VariantID:   variant.ID,
		LocationID:  location.ID,
		Quantity:    1,
	}
	outcome, err := handler.Handle(ctx, resolve(t, enums.EventOrderItemCreated, enums.AggregateOrderItem, created))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	created.OrderItemID = uuid.New()
	_, err = handler.Handle(ctx, resolve(t, enums.EventOrderItemCreated, enums.AggregateOrderItem, created))
	var nonRetryable registry.NonRetryableError
	require.True(t, errors.As(err, &nonRetryable), "insufficient stock should not be retried: %v", err)

	created.VariantID = uuid.New()
	_, err = handler.Handle(ctx, resolve(t, enums.EventOrderItemCreated, enums.AggregateOrderItem, created))
	require.True(t, errors.As(err, &nonRetryable), "unknown variant should not be retried: %v", err)

	_, err = handler.Handle(ctx, &registry.ResolvedEvent{Payload: "unexpected"})
	require.True(t, errors.As(err, &nonRetryable))
}
