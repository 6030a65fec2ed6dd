package payloads

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// OrderItemCreated asks the ledger to deduct the sold quantity.
type OrderItemCreated struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	OrderID     uuid.UUID `json:"orderId"`
	VariantID   uuid.UUID `json:"variantId"`
	LocationID  uuid.UUID `json:"locationId"`
	Quantity    int       `json:"quantity"`
}

func (e OrderItemCreated) Validate() error {
	return validateLine(e.OrderItemID, e.VariantID, e.LocationID, e.Quantity, "orderItemId")
}

// OrderItemCanceled asks the ledger to put back a sale that was applied.
type OrderItemCanceled struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	OrderID     uuid.UUID `json:"orderId"`
	VariantID   uuid.UUID `json:"variantId"`
	LocationID  uuid.UUID `json:"locationId"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason,omitempty"`
}

func (e OrderItemCanceled) Validate() error {
	return validateLine(e.OrderItemID, e.VariantID, e.LocationID, e.Quantity, "orderItemId")
}

// OrderReturnCompleted asks the ledger to restock returned units.
type OrderReturnCompleted struct {
	ReturnID    uuid.UUID `json:"returnId"`
	OrderItemID uuid.UUID `json:"orderItemId"`
	VariantID   uuid.UUID `json:"variantId"`
	LocationID  uuid.UUID `json:"locationId"`
	Quantity    int       `json:"quantity"`
}

func (e OrderReturnCompleted) Validate() error {
	return validateLine(e.ReturnID, e.VariantID, e.LocationID, e.Quantity, "returnId")
}

func validateLine(refID, variantID, locationID uuid.UUID, quantity int, refField string) error {
	var errs []error
	if refID == uuid.Nil {
		errs = append(errs, errors.New(refField+" is required"))
	}
	if variantID == uuid.Nil {
		errs = append(errs, errors.New("variantId is required"))
	}
	if locationID == uuid.Nil {
		errs = append(errs, errors.New("locationId is required"))
	}
	if quantity <= 0 {
		errs = append(errs, errors.New("quantity must be greater than zero"))
	}
	return multierr.Combine(errs...)
}
