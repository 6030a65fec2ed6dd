package purchasing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, po *models.PurchaseOrder) error
	Find(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	MarkReceived(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ActiveLocationExists(ctx context.Context, id uuid.UUID) (bool, error)
	VariantsBySKU(ctx context.Context, skus []string) (map[string]uuid.UUID, error)
	ExistingVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(db *gorm.DB, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := db.
		Preload("Lines", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) MarkReceived(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status = ?", id, enums.PurchaseOrderDraft).
		Updates(map[string]any{
			"status":      enums.PurchaseOrderReceived,
			"received_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ActiveLocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Location{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) VariantsBySKU(ctx context.Context, skus []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	var rows []models.ProductVariant
	if err := r.db.WithContext(ctx).Select("id", "sku").Where("sku IN ?", skus).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SKU] = row.ID
	}
	return out, nil
}

func (r *repository) ExistingVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.ProductVariant{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}
