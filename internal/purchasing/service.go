package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/amount"
	dbpkg "github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	ApplyMovement(ctx context.Context, input inventory.MovementInput) (*models.InventoryMovement, error)
	HasApplied(ctx context.Context, ref inventory.Reference, movementType enums.MovementType) (bool, error)
}

type Service interface {
	ImportPurchaseOrder(ctx context.Context, input ImportInput) (*PurchaseOrderView, error)
	ReceivePurchaseOrder(ctx context.Context, id uuid.UUID) (*ReceiveResult, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrderView, error)
}

type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Ledger     ledger
	Logger     *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger ledger
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("purchasing repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   params.Repository,
		tx:     params.DB,
		ledger: params.Ledger,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ImportPurchaseOrder stores a draft purchase order. Every line is checked
// before anything is written; one bad line rejects the import and all bad
// lines are reported together. A unit cost that does not parse is an error,
// never zero.
func (s *service) ImportPurchaseOrder(ctx context.Context, input ImportInput) (*PurchaseOrderView, error) {
	supplier := strings.TrimSpace(input.SupplierName)
	reference := strings.TrimSpace(input.Reference)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if supplier == "" || reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier name and reference are required")
	}
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}
	if input.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	ok, err := s.repo.ActiveLocationExists(ctx, input.LocationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check location")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found or inactive")
	}

	lines, lineErrs, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}
	if len(lineErrs) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d line(s) rejected", len(lineErrs))).
			WithDetails(lineErrs)
	}

	po := &models.PurchaseOrder{
		SupplierName: supplier,
		Reference:    reference,
		LocationID:   input.LocationID,
		Status:       enums.PurchaseOrderDraft,
		Currency:     currency,
		Lines:        lines,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, po)
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "purchase order reference already imported for supplier")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"purchase_order_id": po.ID,
		"supplier":          supplier,
		"lines":             len(lines),
	}), "purchase order imported")
	view := toView(*po)
	return &view, nil
}

func (s *service) buildLines(ctx context.Context, input []ImportLine) ([]models.PurchaseOrderLine, []LineError, error) {
	var (
		skus []string
		ids  []uuid.UUID
	)
	for _, line := range input {
		if line.VariantID != nil {
			ids = append(ids, *line.VariantID)
		} else if sku := strings.TrimSpace(line.SKU); sku != "" {
			skus = append(skus, sku)
		}
	}
	bySKU, err := s.repo.VariantsBySKU(ctx, skus)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve skus")
	}
	known, err := s.repo.ExistingVariants(ctx, ids)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve variants")
	}

	var lineErrs []LineError
	lines := make([]models.PurchaseOrderLine, 0, len(input))
	for i, line := range input {
		n := i + 1
		variantID, verr := resolveVariant(line, bySKU, known)
		if verr != nil {
			verr.Line = n
			lineErrs = append(lineErrs, *verr)
		}
		if line.Quantity <= 0 {
			lineErrs = append(lineErrs, LineError{Line: n, Field: "quantity", Value: fmt.Sprint(line.Quantity), Message: "must be greater than zero"})
		}
		cost, cerr := parseCost(line.UnitCost)
		if cerr != nil {
			lineErrs = append(lineErrs, LineError{Line: n, Field: "unit_cost", Value: line.UnitCost, Message: cerr.Error()})
		}
		if verr != nil || cerr != nil || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, models.PurchaseOrderLine{
			VariantID:   variantID,
			Quantity:    line.Quantity,
			RawUnitCost: line.UnitCost,
			UnitCost:    cost,
		})
	}
	return lines, lineErrs, nil
}

func resolveVariant(line ImportLine, bySKU map[string]uuid.UUID, known map[uuid.UUID]struct{}) (uuid.UUID, *LineError) {
	if line.VariantID != nil {
		if _, ok := known[*line.VariantID]; !ok {
			return uuid.Nil, &LineError{Field: "variant_id", Value: line.VariantID.String(), Message: "variant not found"}
		}
		return *line.VariantID, nil
	}
	sku := strings.TrimSpace(line.SKU)
	if sku == "" {
		return uuid.Nil, &LineError{Field: "sku", Message: "variant_id or sku required"}
	}
	id, ok := bySKU[sku]
	if !ok {
		return uuid.Nil, &LineError{Field: "sku", Value: sku, Message: "unknown sku"}
	}
	return id, nil
}

func parseCost(raw string) (decimal.Decimal, error) {
	cost, err := amount.ParseDecimal(raw)
	if err != nil {
		return decimal.Zero, errors.New("not a valid amount")
	}
	if cost.IsNegative() {
		return decimal.Zero, errors.New("cannot be negative")
	}
	return cost, nil
}

// ReceivePurchaseOrder books every line as a purchase_received movement.
// Each line is its own ledger write keyed by the line id, so a receive that
// fails halfway can be retried and only the missing lines are applied.
func (s *service) ReceivePurchaseOrder(ctx context.Context, id uuid.UUID) (*ReceiveResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	po, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	logCtx := s.logg.WithField(ctx, "purchase_order_id", po.ID)

	result := &ReceiveResult{}
	for _, line := range po.Lines {
		applied, err := s.receiveLine(ctx, po, line)
		if err != nil {
			s.logg.Error(s.logg.WithField(logCtx, "line_id", line.ID), "purchase order line receive failed", err)
			return nil, err
		}
		if applied {
			result.Applied++
		} else {
			result.Skipped++
		}
	}

	if po.Status != enums.PurchaseOrderReceived {
		at := s.now()
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.repo.WithTx(tx).MarkReceived(ctx, po.ID, at)
			return err
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark purchase order received")
		}
		po.Status = enums.PurchaseOrderReceived
		po.ReceivedAt = &at
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"applied": result.Applied,
		"skipped": result.Skipped,
	}), "purchase order received")
	result.PurchaseOrder = toView(*po)
	return result, nil
}

func (s *service) receiveLine(ctx context.Context, po *models.PurchaseOrder, line models.PurchaseOrderLine) (bool, error) {
	ref := inventory.Reference{Type: enums.ReferencePurchaseOrderLine, ID: line.ID.String()}
	done, err := s.ledger.HasApplied(ctx, ref, enums.MovementPurchaseReceived)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	note := fmt.Sprintf("%s %s", po.SupplierName, po.Reference)
	_, err = s.ledger.ApplyMovement(ctx, inventory.MovementInput{
		VariantID:  line.VariantID,
		LocationID: po.LocationID,
		Type:       enums.MovementPurchaseReceived,
		Quantity:   line.Quantity,
		Reference:  ref,
		Note:       &note,
	})
	if errors.Is(err, inventory.ErrDuplicateMovement) {
		return false, nil
	}
	return err == nil, err
}

func (s *service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrderView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	po, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	view := toView(*po)
	return &view, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase order")
}
