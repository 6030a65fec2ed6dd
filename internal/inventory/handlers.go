package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/payloads"
)

// Outcome reports what a lifecycle handler did with a delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// Handlers apply order lifecycle events to the ledger. Deliveries are
// at-least-once so each handler checks the reference before applying.
type Handlers struct {
	ledger Service
	logg   *logger.Logger
}

func NewHandlers(ledger Service, logg *logger.Logger) (*Handlers, error) {
	if ledger == nil {
		return nil, errors.New("inventory service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Handlers{ledger: ledger, logg: logg}, nil
}

// DeductForOrderItem records the sale of an order item exactly once.
func (h *Handlers) DeductForOrderItem(ctx context.Context, event payloads.OrderItemCreated) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order item payload")
	}
	ref := Reference{Type: enums.ReferenceOrderItem, ID: event.OrderItemID.String()}
	return h.applyOnce(ctx, MovementInput{
		VariantID:  event.VariantID,
		LocationID: event.LocationID,
		Type:       enums.MovementSale,
		Quantity:   event.Quantity,
		Reference:  ref,
	})
}

// RestockForReturn puts returned units back on hand. A return linked to an
// order item waits for that item's sale: until the sale is on the ledger the
// handler fails with a retryable ErrSaleNotApplied.
func (h *Handlers) RestockForReturn(ctx context.Context, event payloads.OrderReturnCompleted) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order return payload")
	}
	if event.OrderItemID != uuid.Nil {
		sale := Reference{Type: enums.ReferenceOrderItem, ID: event.OrderItemID.String()}
		sold, err := h.ledger.HasApplied(ctx, sale, enums.MovementSale)
		if err != nil {
			return "", err
		}
		if !sold {
			return "", pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrSaleNotApplied, "return restock waits for the sale").
				WithDetails(map[string]any{"order_item_id": sale.ID, "return_id": event.ReturnID})
		}
	}
	ref := Reference{Type: enums.ReferenceOrderReturn, ID: event.ReturnID.String()}
	return h.applyOnce(ctx, MovementInput{
		VariantID:  event.VariantID,
		LocationID: event.LocationID,
		Type:       enums.MovementReturn,
		Quantity:   event.Quantity,
		Reference:  ref,
	})
}

// RestockForCancellation reverses a sale. When the sale has not reached the
// ledger yet it is voided instead, so a later or replayed deduction for the
// same item is refused and the cancel never creates stock.
func (h *Handlers) RestockForCancellation(ctx context.Context, event payloads.OrderItemCanceled) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order item cancel payload")
	}
	ref := Reference{Type: enums.ReferenceOrderItem, ID: event.OrderItemID.String()}
	sold, err := h.ledger.HasApplied(ctx, ref, enums.MovementSale)
	if err != nil {
		return "", err
	}
	if !sold {
		voided, err := h.ledger.VoidIfUnapplied(ctx, VoidInput{
			Key:       StockKey{VariantID: event.VariantID, LocationID: event.LocationID},
			Reference: ref,
			Type:      enums.MovementSale,
			Reason:    event.Reason,
		})
		if err != nil {
			return "", err
		}
		if voided {
			h.logg.Info(h.logg.WithField(ctx, "order_item_id", ref.ID), "cancellation voided the pending sale")
			return OutcomeSkipped, nil
		}
		// the sale landed between the two checks
	}

	var note *string
	if event.Reason != "" {
		reason := event.Reason
		note = &reason
	}
	return h.applyOnce(ctx, MovementInput{
		VariantID:  event.VariantID,
		LocationID: event.LocationID,
		Type:       enums.MovementCancellation,
		Quantity:   event.Quantity,
		Reference:  ref,
		Note:       note,
	})
}

func (h *Handlers) applyOnce(ctx context.Context, input MovementInput) (Outcome, error) {
	applied, err := h.ledger.HasApplied(ctx, input.Reference, input.Type)
	if err != nil {
		return "", err
	}
	if applied {
		h.logDuplicate(ctx, input)
		return OutcomeDuplicate, nil
	}
	if _, err := h.ledger.ApplyMovement(ctx, input); err != nil {
		switch {
		// a concurrent delivery won the unique index
		case errors.Is(err, ErrDuplicateMovement):
			h.logDuplicate(ctx, input)
			return OutcomeDuplicate, nil
		case errors.Is(err, ErrReferenceVoided):
			h.logg.Info(h.logg.WithFields(ctx, map[string]any{
				"movement_type":  input.Type,
				"reference_type": input.Reference.Type,
				"reference_id":   input.Reference.ID,
			}), "movement reference voided, skipping")
			return OutcomeSkipped, nil
		}
		return "", err
	}
	return OutcomeApplied, nil
}

func (h *Handlers) logDuplicate(ctx context.Context, input MovementInput) {
	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"movement_type":  input.Type,
		"reference_type": input.Reference.Type,
		"reference_id":   input.Reference.ID,
	}), "movement already applied, skipping")
}
