package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultParkedAttempts      = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	DLQRepository dlqRetentionRepo
	// Retention and DLQRetention are in days.
	Retention    int
	DLQRetention int
	// MinAttempts marks parked rows; it should match the publisher's max attempts.
	MinAttempts int
}

// days is a retention window; non-positive values fall back to a default.
type days int

func (d days) or(fallback days) days {
	if d <= 0 {
		return fallback
	}
	return d
}

func (d days) cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -int(d))
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	dlq          dlqRetentionRepo
	retention    days
	dlqRetention days
	minAttempts  int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository required")
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = defaultParkedAttempts
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQRepository,
		retention:    days(params.Retention).or(defaultOutboxRetentionDays),
		dlqRetention: days(params.DLQRetention).or(defaultDLQRetentionDays),
		minAttempts:  minAttempts,
		now:          time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes published or parked outbox rows and old DLQ rows in one
// transaction. Retryable rows are never touched. DLQ entries normally outlive
// the outbox rows they point at; replay recreates the row from the stored
// payload.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff, dlqCutoff := j.retention.cutoff(now), j.dlqRetention.cutoff(now)

	var outboxRows, dlqRows int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		if outboxRows, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts); err != nil {
			return fmt.Errorf("outbox rows: %w", err)
		}
		if dlqRows, err = j.dlq.DeleteBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dlq rows: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"dlq_cutoff":       dlqCutoff,
		"min_attempts":     j.minAttempts,
		"rows_deleted":     outboxRows,
		"dlq_rows_deleted": dlqRows,
	}), "outbox retention cleanup complete")
	return nil
}
