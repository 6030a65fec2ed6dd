package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// Order is a customer order from any sales channel.
type Order struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Channel       enums.SalesChannel `gorm:"column:channel;type:sales_channel_enum;not null"`
	ExternalID    *string            `gorm:"column:external_id"`
	Status        enums.OrderStatus  `gorm:"column:status;type:order_status_enum;not null"`
	CustomerName  *string            `gorm:"column:customer_name"`
	CustomerEmail *string            `gorm:"column:customer_email"`
	Currency      string             `gorm:"column:currency;not null"`
	TotalAmount   decimal.Decimal    `gorm:"column:total_amount;type:numeric(14,2);not null"`
	CanceledAt    *time.Time         `gorm:"column:canceled_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem is one line of an order; each line drives one sale movement.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	VariantID  uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	LocationID uuid.UUID       `gorm:"column:location_id;type:uuid;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderReturn records returned units for an order item.
type OrderReturn struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderItemID uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null"`
	Quantity    int                `gorm:"column:quantity;not null"`
	Status      enums.ReturnStatus `gorm:"column:status;type:return_status_enum;not null"`
	Reason      *string            `gorm:"column:reason"`
	CompletedAt *time.Time         `gorm:"column:completed_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *OrderReturn) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
