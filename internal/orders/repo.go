package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order and its items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOrder(r.db.WithContext(ctx), id)
}

func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOrder(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) findOrder(db *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := db.
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByExternalID(ctx context.Context, channel enums.SalesChannel, externalID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("channel = ? AND external_id = ?", channel, externalID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filters.Channel != nil {
		query = query.Where("channel = ?", *filters.Channel)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	var rows []models.Order
	err := query.Scopes(pagination.Scope(cursor, limit)).Find(&rows).Error
	return rows, err
}

// MarkCanceled only moves orders that are still in the created state.
func (r *repository) MarkCanceled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusCreated).
		Updates(map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CountVariants(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProductVariant{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

func (r *repository) CountActiveLocations(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Location{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateReturn(ctx context.Context, ret *models.OrderReturn) error {
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) FindReturnForUpdate(ctx context.Context, id uuid.UUID) (*models.OrderReturn, error) {
	var ret models.OrderReturn
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&ret).Error
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) SumReturnedQuantity(ctx context.Context, orderItemID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderReturn{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("order_item_id = ?", orderItemID).
		Scan(&total).Error
	return total, err
}

func (r *repository) MarkReturnCompleted(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderReturn{}).
		Where("id = ? AND status = ?", id, enums.ReturnStatusRequested).
		Updates(map[string]any{
			"status":       enums.ReturnStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}
