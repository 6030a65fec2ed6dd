package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
)

// Service manages the variants and locations stock is keyed by.
type Service interface {
	CreateVariant(ctx context.Context, input CreateVariantInput) (*models.ProductVariant, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	GetVariantBySKU(ctx context.Context, sku string) (*models.ProductVariant, error)
	GetVariantByBarcode(ctx context.Context, barcode string) (*models.ProductVariant, error)
	CreateLocation(ctx context.Context, input CreateLocationInput) (*models.Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	GetLocationByCode(ctx context.Context, code string) (*models.Location, error)
	ListLocations(ctx context.Context, activeOnly bool) ([]models.Location, error)
	SetLocationActive(ctx context.Context, id uuid.UUID, active bool) error
}

type CreateVariantInput struct {
	SKU     string  `json:"sku" validate:"required,max=64,sku"`
	Barcode *string `json:"barcode,omitempty" validate:"omitempty,max=64"`
	Name    string  `json:"name" validate:"required,max=255"`
}

type CreateLocationInput struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateVariant(ctx context.Context, input CreateVariantInput) (*models.ProductVariant, error) {
	sku := strings.TrimSpace(input.SKU)
	name := strings.TrimSpace(input.Name)
	if sku == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku and name are required")
	}
	variant := &models.ProductVariant{SKU: sku, Name: name, Barcode: trimmed(input.Barcode)}
	if err := s.repo.CreateVariant(ctx, variant); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create variant")
	}
	return variant, nil
}

func (s *service) GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	variant, err := s.repo.FindVariant(ctx, id)
	return variant, notFound(err, "variant")
}

func (s *service) GetVariantBySKU(ctx context.Context, sku string) (*models.ProductVariant, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	variant, err := s.repo.FindVariantBySKU(ctx, sku)
	return variant, notFound(err, "variant")
}

func (s *service) GetVariantByBarcode(ctx context.Context, barcode string) (*models.ProductVariant, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode required")
	}
	variant, err := s.repo.FindVariantByBarcode(ctx, barcode)
	return variant, notFound(err, "variant")
}

func (s *service) CreateLocation(ctx context.Context, input CreateLocationInput) (*models.Location, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code and name are required")
	}
	location := &models.Location{Code: code, Name: name, IsActive: true}
	if input.IsActive != nil {
		location.IsActive = *input.IsActive
	}
	if err := s.repo.CreateLocation(ctx, location); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "location code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create location")
	}
	return location, nil
}

func (s *service) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	location, err := s.repo.FindLocation(ctx, id)
	return location, notFound(err, "location")
}

func (s *service) GetLocationByCode(ctx context.Context, code string) (*models.Location, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location code required")
	}
	location, err := s.repo.FindLocationByCode(ctx, code)
	return location, notFound(err, "location")
}

func (s *service) ListLocations(ctx context.Context, activeOnly bool) ([]models.Location, error) {
	locations, err := s.repo.ListLocations(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locations")
	}
	return locations, nil
}

// SetLocationActive toggles a location. Existing stock is untouched; callers
// such as order intake refuse inactive locations.
func (s *service) SetLocationActive(ctx context.Context, id uuid.UUID, active bool) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	rows, err := s.repo.SetLocationActive(ctx, id, active)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update location")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
	}
	return nil
}

func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
