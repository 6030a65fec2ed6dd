package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

// Integration holds marketplace credentials used to authenticate inbound webhooks.
type Integration struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Channel   enums.SalesChannel `gorm:"column:channel;type:sales_channel_enum;not null"`
	Name      string             `gorm:"column:name;not null"`
	Secret    string             `gorm:"column:secret;not null"`
	IsActive  bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Integration) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
