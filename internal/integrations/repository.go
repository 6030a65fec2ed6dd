package integrations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/internal/repo"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
)

type Repository interface {
	Create(ctx context.Context, integration *models.Integration) error
	FindActiveByChannel(ctx context.Context, channel enums.SalesChannel) (*models.Integration, error)
	Deactivate(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, integration *models.Integration) error {
	return r.DB(ctx).Create(integration).Error
}

// FindActiveByChannel returns the most recently updated active integration,
// or nil when the channel has none.
func (r *repository) FindActiveByChannel(ctx context.Context, channel enums.SalesChannel) (*models.Integration, error) {
	return repo.FirstOrNil[models.Integration](r.DB(ctx).
		Where("channel = ? AND is_active = ?", channel, true).
		Order("updated_at DESC"))
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Integration{}).
		Where("id = ?", id).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
