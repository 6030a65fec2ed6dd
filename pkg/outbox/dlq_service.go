package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DLQService exposes dead-lettered events to operators.
type DLQService struct {
	db   txRunner
	repo *Repository
	dlq  *DLQRepository
	logg *logger.Logger
	now  func() time.Time
}

func NewDLQService(db txRunner, repo *Repository, dlq *DLQRepository, logg *logger.Logger) *DLQService {
	if logg == nil {
		logg = logger.Nop()
	}
	return &DLQService{
		db:   db,
		repo: repo,
		dlq:  dlq,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *DLQService) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	rows, err := s.dlq.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead-lettered events")
	}
	return rows, nil
}

// Replay puts the original outbox row back into the delivery queue. The row
// is recreated from the DLQ payload when retention already removed it.
func (s *DLQService) Replay(ctx context.Context, id uuid.UUID) (*models.OutboxDLQ, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dlq id required")
	}

	var replayed *models.OutboxDLQ
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.dlq.FindByIDTx(tx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dlq entry")
		}
		if entry == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dlq entry not found")
		}
		if entry.Replayed() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dlq entry already replayed")
		}

		found, err := s.repo.ResetForReplayTx(tx, entry.EventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset outbox event")
		}
		if !found {
			if err := s.repo.Insert(tx, entry.Restore()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore outbox event")
			}
		}

		at := s.now()
		if err := s.dlq.MarkReplayedTx(tx, entry.ID, at); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark dlq entry replayed")
		}
		entry.ReplayedAt = &at
		replayed = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"dlq_id":     replayed.ID.String(),
		"outbox_id":  replayed.EventID.String(),
		"event_type": replayed.EventType,
	}), "dead-lettered event queued for replay")
	return replayed, nil
}
