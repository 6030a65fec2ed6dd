package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

// movementReferenceConstraint is the unique index that makes a reference
// applicable at most once per type and key.
const movementReferenceConstraint = "uq_inventory_movements_reference"

// Repository is the persistence surface of the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	VariantExists(ctx context.Context, id uuid.UUID) (bool, error)
	LocationExists(ctx context.Context, id uuid.UUID) (bool, error)
	LockStockLevel(ctx context.Context, key StockKey) (*models.StockLevel, error)
	FindStockLevel(ctx context.Context, key StockKey) (*models.StockLevel, error)
	InsertStockLevel(ctx context.Context, level *models.StockLevel) error
	CompareAndSetOnHand(ctx context.Context, current models.StockLevel, next int, at time.Time) (bool, error)
	InsertMovement(ctx context.Context, movement *models.InventoryMovement) error
	HasMovement(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error)
	IsVoided(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error)
	InsertVoid(ctx context.Context, void *models.VoidedReference) error
	ListMovements(ctx context.Context, key StockKey, cursor *pagination.Cursor, limit int) ([]models.InventoryMovement, error)
	SummarizeMovements(ctx context.Context, key StockKey) (MovementSummary, error)
	ListStockLevels(ctx context.Context, after *StockKey, limit int) ([]models.StockLevel, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) VariantExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProductVariant{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *repository) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Location{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// LockStockLevel reads the row with SELECT ... FOR UPDATE. It returns nil
// when the key has no row yet.
func (r *repository) LockStockLevel(ctx context.Context, key StockKey) (*models.StockLevel, error) {
	return r.findStockLevel(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), key)
}

func (r *repository) FindStockLevel(ctx context.Context, key StockKey) (*models.StockLevel, error) {
	return r.findStockLevel(r.db.WithContext(ctx), key)
}

func (r *repository) findStockLevel(db *gorm.DB, key StockKey) (*models.StockLevel, error) {
	var level models.StockLevel
	err := db.Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID).Take(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (r *repository) InsertStockLevel(ctx context.Context, level *models.StockLevel) error {
	return r.db.WithContext(ctx).Create(level).Error
}

// CompareAndSetOnHand writes next and bumps the version only if the row still
// holds the on_hand and version that were read under the lock.
func (r *repository) CompareAndSetOnHand(ctx context.Context, current models.StockLevel, next int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockLevel{}).
		Where("variant_id = ? AND location_id = ? AND on_hand = ? AND version = ?",
			current.VariantID, current.LocationID, current.OnHand, current.Version).
		Updates(map[string]any{
			"on_hand":    next,
			"version":    current.Version + 1,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) HasMovement(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("reference_type = ? AND reference_id = ? AND type = ?", string(ref.Type), ref.ID, movementType).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) IsVoided(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoidedReference{}).
		Where("reference_type = ? AND reference_id = ? AND movement_type = ?", string(ref.Type), ref.ID, movementType).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) InsertVoid(ctx context.Context, void *models.VoidedReference) error {
	return r.db.WithContext(ctx).Create(void).Error
}

func (r *repository) ListMovements(ctx context.Context, key StockKey, cursor *pagination.Cursor, limit int) ([]models.InventoryMovement, error) {
	query := r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID)
	var rows []models.InventoryMovement
	err := query.Scopes(pagination.Scope(cursor, limit)).Find(&rows).Error
	return rows, err
}

func (r *repository) SummarizeMovements(ctx context.Context, key StockKey) (MovementSummary, error) {
	var agg struct {
		Count int64
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity_delta), 0) AS total").
		Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID).
		Scan(&agg).Error
	if err != nil {
		return MovementSummary{}, err
	}
	summary := MovementSummary{Count: agg.Count, Sum: agg.Total}
	if agg.Count == 0 {
		return summary, nil
	}

	var oldest models.InventoryMovement
	err = r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", key.VariantID, key.LocationID).
		Order("sequence ASC").
		Take(&oldest).Error
	if err != nil {
		return MovementSummary{}, err
	}
	summary.Opening = int64(oldest.BalanceAfter - oldest.QuantityDelta)
	return summary, nil
}

func (r *repository) ListStockLevels(ctx context.Context, after *StockKey, limit int) ([]models.StockLevel, error) {
	query := r.db.WithContext(ctx).Model(&models.StockLevel{})
	if after != nil {
		query = query.Where("(variant_id > ?) OR (variant_id = ? AND location_id > ?)", after.VariantID, after.VariantID, after.LocationID)
	}
	var rows []models.StockLevel
	err := query.
		Order("variant_id ASC").
		Order("location_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
