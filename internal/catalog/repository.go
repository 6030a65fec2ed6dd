package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
)

// Repository persists variants and locations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateVariant(ctx context.Context, variant *models.ProductVariant) error
	CreateLocation(ctx context.Context, location *models.Location) error
	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	FindVariantBySKU(ctx context.Context, sku string) (*models.ProductVariant, error)
	FindVariantByBarcode(ctx context.Context, barcode string) (*models.ProductVariant, error)
	FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	FindLocationByCode(ctx context.Context, code string) (*models.Location, error)
	ListLocations(ctx context.Context, activeOnly bool) ([]models.Location, error)
	SetLocationActive(ctx context.Context, id uuid.UUID, active bool) (int64, error)
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

func (r *repository) CreateVariant(ctx context.Context, variant *models.ProductVariant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *repository) CreateLocation(ctx context.Context, location *models.Location) error {
	// is_active carries default:true, so a false value is written explicitly.
	active := location.IsActive
	if err := r.db.WithContext(ctx).Create(location).Error; err != nil {
		return err
	}
	if active {
		return nil
	}
	location.IsActive = false
	return r.db.WithContext(ctx).Model(location).Update("is_active", false).Error
}

func (r *repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindVariantBySKU(ctx context.Context, sku string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindVariantByBarcode(ctx context.Context, barcode string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("barcode = ?", barcode).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var location models.Location
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repository) FindLocationByCode(ctx context.Context, code string) (*models.Location, error) {
	var location models.Location
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repository) ListLocations(ctx context.Context, activeOnly bool) ([]models.Location, error) {
	query := r.db.WithContext(ctx).Model(&models.Location{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var locations []models.Location
	err := query.Order("code ASC").Find(&locations).Error
	return locations, err
}

func (r *repository) SetLocationActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Location{}).
		Where("id = ?", id).
		Update("is_active", active)
	return res.RowsAffected, res.Error
}
