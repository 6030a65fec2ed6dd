package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	dbpkg "github.com/angelmondragon/retailops-backend/pkg/db"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/pagination"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the inventory ledger. Every StockLevel change goes through it
// together with the InventoryMovement that explains it.
type Service interface {
	ApplyMovement(ctx context.Context, input MovementInput) (*models.InventoryMovement, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	HasApplied(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error)
	VoidIfUnapplied(ctx context.Context, input VoidInput) (bool, error)
	GetStockLevel(ctx context.Context, key StockKey) (*StockLevelView, error)
	ListMovements(ctx context.Context, key StockKey, params pagination.Params) (*MovementList, error)
	Reconcile(ctx context.Context, key StockKey) (*ReconcileResult, error)
}

type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Logger     *logger.Logger
	Metrics    *metrics.LedgerMetrics
	Config     config.InventoryConfig
}

type service struct {
	repo           Repository
	tx             txRunner
	logg           *logger.Logger
	metrics        *metrics.LedgerMetrics
	locks          *keyLocker
	allowBackorder bool
	retry          retryPolicy
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	maxDelay := params.Config.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	return &service{
		repo:           params.Repository,
		tx:             params.DB,
		logg:           logg,
		metrics:        params.Metrics,
		locks:          newKeyLocker(),
		allowBackorder: params.Config.AllowBackorder,
		retry: retryPolicy{
			attempts:  params.Config.MaxAttempts,
			baseDelay: params.Config.RetryBaseDelay,
			maxDelay:  maxDelay,
		}.normalized(),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ApplyMovement(ctx context.Context, input MovementInput) (*models.InventoryMovement, error) {
	delta, err := signedDelta(input.Type, input.Quantity, input.Direction)
	if err != nil {
		return nil, err
	}
	if err := validateKey(input.VariantID, input.LocationID); err != nil {
		return nil, err
	}
	if err := validateReference(input.Reference); err != nil {
		return nil, err
	}

	key := StockKey{VariantID: input.VariantID, LocationID: input.LocationID}
	step := ledgerStep{key: key, movementType: input.Type, delta: delta, ref: input.Reference, note: input.Note, occurredAt: input.OccurredAt}
	logCtx := s.logg.WithStockKey(ctx, key.VariantID.String(), key.LocationID.String())

	var applied *models.InventoryMovement
	err = s.withRetry(logCtx, []StockKey{key}, func(tx *gorm.DB) error {
		movement, err := s.applyStep(ctx, s.repo.WithTx(tx), step)
		if err != nil {
			return err
		}
		applied = movement
		return nil
	})
	if err != nil {
		return nil, s.classify(logCtx, input.Type, err)
	}

	s.metrics.IncApplied(string(input.Type))
	fields := map[string]any{
		"movement_id":    applied.ID.String(),
		"movement_type":  applied.Type,
		"quantity_delta": applied.QuantityDelta,
		"balance_after":  applied.BalanceAfter,
	}
	if !input.Reference.IsZero() {
		fields["reference_type"] = input.Reference.Type
		fields["reference_id"] = input.Reference.ID
	}
	s.logg.Info(s.logg.WithFields(logCtx, fields), "inventory movement applied")
	return applied, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if err := validateKey(input.VariantID, input.FromLocationID); err != nil {
		return nil, err
	}
	if input.ToLocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination location id required")
	}
	if input.FromLocationID == input.ToLocationID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination locations must differ")
	}
	transferID := strings.TrimSpace(input.TransferID)
	if transferID == "" {
		transferID = uuid.NewString()
	}

	ref := Reference{Type: enums.ReferenceStockTransfer, ID: transferID}
	from := StockKey{VariantID: input.VariantID, LocationID: input.FromLocationID}
	to := StockKey{VariantID: input.VariantID, LocationID: input.ToLocationID}

	var result TransferResult
	err := s.withRetry(ctx, []StockKey{from, to}, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		out, err := s.applyStep(ctx, repo, ledgerStep{key: from, movementType: enums.MovementTransfer, delta: -input.Quantity, ref: ref, note: input.Note, occurredAt: input.OccurredAt})
		if err != nil {
			return err
		}
		in, err := s.applyStep(ctx, repo, ledgerStep{key: to, movementType: enums.MovementTransfer, delta: input.Quantity, ref: ref, note: input.Note, occurredAt: input.OccurredAt})
		if err != nil {
			return err
		}
		result = TransferResult{Out: *out, In: *in}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, enums.MovementTransfer, err)
	}

	s.metrics.IncApplied(string(enums.MovementTransfer))
	s.metrics.IncApplied(string(enums.MovementTransfer))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transfer_id":      transferID,
		"variant_id":       input.VariantID.String(),
		"from_location_id": input.FromLocationID.String(),
		"to_location_id":   input.ToLocationID.String(),
		"quantity":         input.Quantity,
	}), "stock transferred")
	return &result, nil
}

func (s *service) HasApplied(ctx context.Context, ref Reference, movementType enums.MovementType) (bool, error) {
	if ref.IsZero() {
		return false, nil
	}
	if err := validateReference(ref); err != nil {
		return false, err
	}
	applied, err := s.repo.HasMovement(ctx, ref, movementType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check applied movement")
	}
	return applied, nil
}

// VoidIfUnapplied blocks input.Type for input.Reference unless it was already
// applied, and reports whether the reference is now voided. The check and the
// marker run under the same key lock as ApplyMovement, so a racing apply
// either lands first and is seen here, or finds the marker and is refused.
func (s *service) VoidIfUnapplied(ctx context.Context, input VoidInput) (bool, error) {
	if err := validateKey(input.Key.VariantID, input.Key.LocationID); err != nil {
		return false, err
	}
	if input.Reference.IsZero() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	if err := validateReference(input.Reference); err != nil {
		return false, err
	}
	if !input.Type.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement type %q", input.Type))
	}

	logCtx := s.logg.WithStockKey(ctx, input.Key.VariantID.String(), input.Key.LocationID.String())
	var voided bool
	err := s.withRetry(logCtx, []StockKey{input.Key}, func(tx *gorm.DB) error {
		var err error
		voided, err = s.voidStep(ctx, s.repo.WithTx(tx), input)
		return err
	})
	if err != nil {
		return false, s.classify(logCtx, input.Type, err)
	}
	if voided {
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"movement_type":  input.Type,
			"reference_type": input.Reference.Type,
			"reference_id":   input.Reference.ID,
		}), "movement reference voided")
	}
	return voided, nil
}

func (s *service) voidStep(ctx context.Context, repo Repository, input VoidInput) (bool, error) {
	if err := s.ensureKeyExists(ctx, repo, input.Key); err != nil {
		return false, err
	}
	level, err := repo.LockStockLevel(ctx, input.Key)
	if err != nil {
		return false, err
	}
	if level == nil {
		// a zero row gives the apply path something to lock against
		err := repo.InsertStockLevel(ctx, &models.StockLevel{
			VariantID:  input.Key.VariantID,
			LocationID: input.Key.LocationID,
			UpdatedAt:  s.now(),
		})
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return false, errConcurrentUpdate
			}
			return false, err
		}
	}

	applied, err := repo.HasMovement(ctx, input.Reference, input.Type)
	if err != nil || applied {
		return false, err
	}
	already, err := repo.IsVoided(ctx, input.Reference, input.Type)
	if err != nil || already {
		return already, err
	}

	void := &models.VoidedReference{
		ReferenceType: string(input.Reference.Type),
		ReferenceID:   input.Reference.ID,
		MovementType:  input.Type,
		VariantID:     input.Key.VariantID,
		LocationID:    input.Key.LocationID,
		VoidedAt:      s.now(),
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		void.Reason = &reason
	}
	if err := repo.InsertVoid(ctx, void); err != nil {
		// the retry sees the winner's marker
		if dbpkg.IsUniqueViolation(err, "") {
			return false, errConcurrentUpdate
		}
		return false, err
	}
	return true, nil
}

func (s *service) GetStockLevel(ctx context.Context, key StockKey) (*StockLevelView, error) {
	if err := s.ensureKeyExists(ctx, s.repo, key); err != nil {
		return nil, err
	}
	level, err := s.repo.FindStockLevel(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
	}
	view := &StockLevelView{VariantID: key.VariantID, LocationID: key.LocationID}
	if level != nil {
		updatedAt := level.UpdatedAt
		view.OnHand = level.OnHand
		view.UpdatedAt = &updatedAt
	}
	return view, nil
}

func (s *service) ListMovements(ctx context.Context, key StockKey, params pagination.Params) (*MovementList, error) {
	if err := validateKey(key.VariantID, key.LocationID); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListMovements(ctx, key, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}
	rows, next := pagination.Page(rows, params.Limit, cursorOf)

	list := &MovementList{Movements: make([]MovementView, 0, len(rows))}
	for _, row := range rows {
		list.Movements = append(list.Movements, NewMovementView(row))
	}
	list.NextCursor = next
	return list, nil
}

func cursorOf(row models.InventoryMovement) pagination.Cursor {
	return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
}

func (s *service) Reconcile(ctx context.Context, key StockKey) (*ReconcileResult, error) {
	if err := validateKey(key.VariantID, key.LocationID); err != nil {
		return nil, err
	}
	level, err := s.repo.FindStockLevel(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
	}
	summary, err := s.repo.SummarizeMovements(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize movements")
	}

	result := &ReconcileResult{
		VariantID:     key.VariantID,
		LocationID:    key.LocationID,
		Opening:       summary.Opening,
		MovementSum:   summary.Sum,
		MovementCount: summary.Count,
	}
	if level != nil {
		result.OnHand = int64(level.OnHand)
	}
	if summary.Count == 0 {
		// nothing to compare against; a seeded level is its own opening balance
		result.Opening = result.OnHand
	}
	result.Drift = result.OnHand - (result.Opening + result.MovementSum)
	if !result.InSync() {
		s.metrics.IncDrift()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"variant_id":   key.VariantID.String(),
			"location_id":  key.LocationID.String(),
			"on_hand":      result.OnHand,
			"opening":      result.Opening,
			"movement_sum": result.MovementSum,
			"drift":        result.Drift,
		}), "stock level drift detected")
	}
	return result, nil
}

type ledgerStep struct {
	key          StockKey
	movementType enums.MovementType
	delta        int
	ref          Reference
	note         *string
	occurredAt   time.Time
}

// applyStep updates one StockLevel and appends its movement. It must run
// inside a transaction with the key lock held.
func (s *service) applyStep(ctx context.Context, repo Repository, step ledgerStep) (*models.InventoryMovement, error) {
	if err := s.ensureKeyExists(ctx, repo, step.key); err != nil {
		return nil, err
	}

	level, err := repo.LockStockLevel(ctx, step.key)
	if err != nil {
		return nil, err
	}
	if !step.ref.IsZero() {
		voided, err := repo.IsVoided(ctx, step.ref, step.movementType)
		if err != nil {
			return nil, err
		}
		if voided {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrReferenceVoided, "movement reference was voided").
				WithDetails(map[string]any{"reference_type": step.ref.Type, "reference_id": step.ref.ID})
		}
	}
	current := 0
	var version int64
	if level != nil {
		current = level.OnHand
		version = level.Version
	}
	next := current + step.delta
	if next < 0 && !s.allowBackorder {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, ErrInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{
				"variant_id":  step.key.VariantID,
				"location_id": step.key.LocationID,
				"on_hand":     current,
				"requested":   -step.delta,
			})
	}

	now := s.now()
	if level == nil {
		err := repo.InsertStockLevel(ctx, &models.StockLevel{
			VariantID:  step.key.VariantID,
			LocationID: step.key.LocationID,
			OnHand:     next,
			Version:    1,
			UpdatedAt:  now,
		})
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return nil, errConcurrentUpdate
			}
			return nil, err
		}
	} else {
		swapped, err := repo.CompareAndSetOnHand(ctx, *level, next, now)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, errConcurrentUpdate
		}
	}

	occurredAt := step.occurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	movement := &models.InventoryMovement{
		VariantID:     step.key.VariantID,
		LocationID:    step.key.LocationID,
		Type:          step.movementType,
		QuantityDelta: step.delta,
		BalanceAfter:  next,
		Sequence:      version + 1,
		Note:          step.note,
		OccurredAt:    occurredAt.UTC(),
	}
	if !step.ref.IsZero() {
		refType := string(step.ref.Type)
		refID := step.ref.ID
		movement.ReferenceType = &refType
		movement.ReferenceID = &refID
	}
	if err := repo.InsertMovement(ctx, movement); err != nil {
		if isDuplicateMovement(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrDuplicateMovement, "movement already applied")
		}
		return nil, err
	}
	return movement, nil
}

func (s *service) ensureKeyExists(ctx context.Context, repo Repository, key StockKey) error {
	ok, err := repo.VariantExists(ctx, key.VariantID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").WithDetails(map[string]any{"variant_id": key.VariantID})
	}
	ok, err = repo.LocationExists(ctx, key.LocationID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "location not found").WithDetails(map[string]any{"location_id": key.LocationID})
	}
	return nil
}

// withRetry takes the key locks before opening the transaction and retries
// the whole unit on transient failures.
func (s *service) withRetry(ctx context.Context, keys []StockKey, fn func(tx *gorm.DB) error) error {
	onRetry := func(attempt int, err error) {
		s.metrics.IncRetry()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "retrying ledger write after transient failure")
	}
	attempts, err := retryTransient(ctx, s.retry, onRetry, func() error {
		unlock := s.locks.Lock(keys...)
		defer unlock()
		return s.tx.WithTx(ctx, fn)
	})
	if err != nil && isTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("ledger write failed after %d attempts", attempts))
	}
	return err
}

// classify maps internal failures to typed errors and records metrics.
func (s *service) classify(ctx context.Context, movementType enums.MovementType, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		s.metrics.IncInsufficientStock(string(movementType))
		s.logg.Warn(s.logg.WithField(ctx, "movement_type", movementType), "movement rejected: insufficient stock")
		return err
	case errors.Is(err, ErrDuplicateMovement):
		s.metrics.IncDuplicate(string(movementType))
		return err
	case pkgerrors.As(err) != nil:
		return err
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply movement")
	}
}

// signedDelta applies the movement-type policy to a positive quantity.
func signedDelta(movementType enums.MovementType, quantity int, direction Direction) (int, error) {
	if !movementType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement type %q", movementType))
	}
	if quantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if direction != DirectionNone && direction != DirectionIn && direction != DirectionOut {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "direction must be +1 or -1")
	}

	effect := movementType.Effect()
	if effect == enums.EffectNeutral {
		if direction == DirectionNone {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("direction required for %s movements", movementType))
		}
		return quantity * int(direction), nil
	}
	if direction != DirectionNone && int(direction) != int(effect) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("direction contradicts %s policy", movementType))
	}
	return quantity * int(effect), nil
}

// isDuplicateMovement matches the postgres constraint name and the column
// list sqlite reports for the same index.
func isDuplicateMovement(err error) bool {
	return dbpkg.IsUniqueViolation(err, movementReferenceConstraint) ||
		dbpkg.IsUniqueViolation(err, "inventory_movements.reference_id")
}

func validateKey(variantID, locationID uuid.UUID) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if locationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id required")
	}
	return nil
}

func validateReference(ref Reference) error {
	if ref.IsZero() {
		return nil
	}
	if !ref.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown reference type %q", ref.Type))
	}
	if strings.TrimSpace(ref.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id required")
	}
	return nil
}
