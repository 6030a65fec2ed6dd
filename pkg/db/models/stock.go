package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// StockLevel is the current on-hand count for a (variant, location) key.
// Only the inventory ledger writes it. Version counts ledger writes and
// becomes the Sequence of the movement that made them.
type StockLevel struct {
	VariantID  uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;primaryKey"`
	OnHand     int       `gorm:"column:on_hand;not null;default:0"`
	Version    int64     `gorm:"column:version;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// InventoryMovement is an append-only audit row. QuantityDelta is signed and
// BalanceAfter is the on-hand count once the movement was applied. Sequence
// orders the movements of one key.
type InventoryMovement struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VariantID     uuid.UUID          `gorm:"column:variant_id;type:uuid;not null"`
	LocationID    uuid.UUID          `gorm:"column:location_id;type:uuid;not null"`
	Type          enums.MovementType `gorm:"column:type;type:movement_type_enum;not null"`
	QuantityDelta int                `gorm:"column:quantity_delta;not null"`
	BalanceAfter  int                `gorm:"column:balance_after;not null"`
	Sequence      int64              `gorm:"column:sequence;not null"`
	ReferenceType *string            `gorm:"column:reference_type"`
	ReferenceID   *string            `gorm:"column:reference_id"`
	Note          *string            `gorm:"column:note"`
	OccurredAt    time.Time          `gorm:"column:occurred_at;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// VoidedReference blocks a movement that has not been applied yet, e.g. the
// sale of an order item canceled before its deduction ran.
type VoidedReference struct {
	ReferenceType string             `gorm:"column:reference_type;primaryKey"`
	ReferenceID   string             `gorm:"column:reference_id;primaryKey"`
	MovementType  enums.MovementType `gorm:"column:movement_type;type:movement_type_enum;primaryKey"`
	VariantID     uuid.UUID          `gorm:"column:variant_id;type:uuid;not null"`
	LocationID    uuid.UUID          `gorm:"column:location_id;type:uuid;not null"`
	Reason        *string            `gorm:"column:reason"`
	VoidedAt      time.Time          `gorm:"column:voided_at;not null"`
}

func (VoidedReference) TableName() string { return "inventory_voided_references" }
