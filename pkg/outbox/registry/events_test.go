package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	itemID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventOrderItemCreated,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   itemID,
		Payload: mustEnvelope(t, 1, payloads.OrderItemCreated{
			OrderItemID: itemID,
			OrderID:     uuid.New(),
			VariantID:   uuid.New(),
			LocationID:  uuid.New(),
			Quantity:    3,
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	require.Equal(t, "inventory-events", resolved.Descriptor.Topic)
	require.Equal(t, enums.EventOrderItemCreated, resolved.Descriptor.EventType)

	payload, ok := resolved.Payload.(*payloads.OrderItemCreated)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	require.Equal(t, itemID, payload.OrderItemID)
	require.Equal(t, 3, payload.Quantity)
	require.NotEmpty(t, resolved.Envelope.EventID)
	require.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestEventRegistryResolveFailuresAreNonRetryable(t *testing.T) {
	reg := newTestEventRegistry(t)
	valid := payloads.OrderReturnCompleted{ReturnID: uuid.New(), VariantID: uuid.New(), LocationID: uuid.New(), Quantity: 1}

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "order_paid",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, 1, valid),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, 1, valid),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			Payload:       mustEnvelope(t, 1, valid),
		},
		"null payload": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, 1, nil),
		},
		"unknown version": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, 7, valid),
		},
		"payload from a newer schema": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, 1, map[string]any{"returnId": uuid.New(), "quantity": 1, "restockFee": "2.50"}),
		},
		"broken envelope": {
			EventType:     enums.EventOrderReturnCompleted,
			AggregateType: enums.AggregateOrderReturn,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			var nonRetry NonRetryableError
			require.True(t, errors.As(err, &nonRetry), "expected non-retryable error, got %T", err)
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry("")
	require.Error(t, err)
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry("inventory-events")
	require.NoError(t, err)
	return reg
}

func mustEnvelope(t *testing.T, version int, data interface{}) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return raw
}
