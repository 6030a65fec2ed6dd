package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// PurchaseOrder is a supplier order received into a single location.
type PurchaseOrder struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	SupplierName string                    `gorm:"column:supplier_name;not null"`
	Reference    string                    `gorm:"column:reference;not null"`
	LocationID   uuid.UUID                 `gorm:"column:location_id;type:uuid;not null"`
	Status       enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status_enum;not null"`
	Currency     string                    `gorm:"column:currency;not null"`
	ReceivedAt   *time.Time                `gorm:"column:received_at"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                 `gorm:"column:updated_at;autoUpdateTime"`

	Lines []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderID"`
}

func (p *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PurchaseOrderLine keeps the supplier-entered cost next to the parsed value.
type PurchaseOrderLine struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseOrderID uuid.UUID       `gorm:"column:purchase_order_id;type:uuid;not null"`
	VariantID       uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	RawUnitCost     string          `gorm:"column:raw_unit_cost;not null"`
	UnitCost        decimal.Decimal `gorm:"column:unit_cost;type:numeric(14,4);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *PurchaseOrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
