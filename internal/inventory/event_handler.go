package inventory

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

// EventHandler routes resolved outbox events to the lifecycle handlers. Both
// the in-process dispatcher and the Kafka consumer go through it.
type EventHandler struct {
	handlers *Handlers
}

func NewEventHandler(handlers *Handlers) (*EventHandler, error) {
	if handlers == nil {
		return nil, errors.New("inventory handlers required")
	}
	return &EventHandler{handlers: handlers}, nil
}

// Handle applies one event. Failures that will not change on redelivery are
// returned as registry.NonRetryableError.
func (h *EventHandler) Handle(ctx context.Context, event *registry.ResolvedEvent) (Outcome, error) {
	if event == nil {
		return "", registry.NewNonRetryableError(errors.New("event required"))
	}

	var (
		outcome Outcome
		err     error
	)
	switch payload := event.Payload.(type) {
	case *payloads.OrderItemCreated:
		outcome, err = h.handlers.DeductForOrderItem(ctx, *payload)
	case *payloads.OrderItemCanceled:
		outcome, err = h.handlers.RestockForCancellation(ctx, *payload)
	case *payloads.OrderReturnCompleted:
		outcome, err = h.handlers.RestockForReturn(ctx, *payload)
	default:
		return "", registry.NewNonRetryableError(fmt.Errorf("no inventory handler for %s (%T)", event.Descriptor.EventType, event.Payload))
	}
	if err != nil {
		if isPermanent(err) {
			return "", registry.NewNonRetryableError(err)
		}
		return "", err
	}
	return outcome, nil
}

func isPermanent(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation) ||
		pkgerrors.HasCode(err, pkgerrors.CodeNotFound) ||
		pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock)
}
