package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, items and returns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByExternalID(ctx context.Context, channel enums.SalesChannel, externalID string) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	MarkCanceled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error)
	CountVariants(ctx context.Context, ids []uuid.UUID) (int64, error)
	CountActiveLocations(ctx context.Context, ids []uuid.UUID) (int64, error)
	CreateReturn(ctx context.Context, ret *models.OrderReturn) error
	FindReturnForUpdate(ctx context.Context, id uuid.UUID) (*models.OrderReturn, error)
	SumReturnedQuantity(ctx context.Context, orderItemID uuid.UUID) (int64, error)
	MarkReturnCompleted(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
}
