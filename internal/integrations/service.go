package integrations

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
)

// Service manages marketplace credentials.
type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("integrations repository required")
	}
	return &Service{repo: repo}, nil
}

type RegisterInput struct {
	Channel enums.SalesChannel `json:"channel" validate:"required"`
	Name    string             `json:"name" validate:"required,max=255"`
	Secret  string             `json:"secret" validate:"required,min=8"`
}

// Register stores a new active integration. The newest active integration of
// a channel wins, so registering rotates the secret.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.Integration, error) {
	if !input.Channel.IsMarketplace() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "integration channel must be a marketplace")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || input.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and secret are required")
	}
	integration := &models.Integration{
		Channel:  input.Channel,
		Name:     name,
		Secret:   input.Secret,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, integration); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create integration")
	}
	return integration, nil
}

// Active returns the active integration for channel, nil if none.
func (s *Service) Active(ctx context.Context, channel enums.SalesChannel) (*models.Integration, error) {
	integration, err := s.repo.FindActiveByChannel(ctx, channel)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load integration")
	}
	return integration, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	rows, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate integration")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "integration not found")
	}
	return nil
}
