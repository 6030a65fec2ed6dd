package inventory

import "errors"

var (
	// ErrInsufficientStock is wrapped by CodeInsufficientStock errors when a
	// deduction would take on-hand below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateMovement is returned when the reference was already applied
	// for the same movement type and key.
	ErrDuplicateMovement = errors.New("movement already applied")
	// ErrReferenceVoided is returned when the reference was voided for the
	// movement type before it could be applied.
	ErrReferenceVoided = errors.New("movement reference voided")
	// ErrSaleNotApplied means a restock arrived for an order item whose sale
	// is not on the ledger yet. Redelivery may succeed.
	ErrSaleNotApplied = errors.New("sale not applied")
)
