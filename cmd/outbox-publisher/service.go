package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize       = 50
	defaultPoll            = 500 * time.Millisecond
	defaultDeliveryTimeout = 15 * time.Second
	defaultMaxAttempts     = 10
	maxBackoff             = 10 * time.Second
	jitterWindow           = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher delivers one resolved outbox row. A registry.NonRetryableError
// sends the row straight to the DLQ.
type publisher interface {
	Deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error
	Name() string
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Repository    outboxRepository
	Registry      registryResolver
	Publisher     publisher
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

type settings struct {
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	s := settings{batchSize: cfg.BatchSize, maxAttempts: cfg.MaxAttempts, poll: time.Duration(cfg.PollIntervalMS) * time.Millisecond}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPoll
	}
	return s
}

// Service drains outbox_events. Rows are claimed in one transaction,
// delivered outside of it and settled one by one, so a handler that opens its
// own transaction never waits on the claim. Delivery is at-least-once.
type Service struct {
	settings
	logg      *logger.Logger
	db        dbClient
	repo      outboxRepository
	registry  registryResolver
	publisher publisher
	dlq       dlqRepository
	metrics   *metrics.OutboxMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"outbox repository", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"publisher", params.Publisher == nil},
		{"dlq repository", params.DLQRepository == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	return &Service{
		settings:  settingsFrom(params.Config.Outbox),
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		registry:  params.Registry,
		publisher: params.Publisher,
		dlq:       params.DLQRepository,
		metrics:   params.Metrics,
	}, nil
}

// Run polls until ctx ends. A busy batch is followed straight away by the
// next one; idle polls wait one interval and failures back off up to
// maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "publisher", s.publisher.Name()), "outbox publisher ready")

	backoff := s.poll
	for ctx.Err() == nil {
		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.poll, maxBackoff)
			wait = withJitter(backoff)
		case processed:
			backoff = s.poll
			continue
		default:
			backoff = s.poll
			wait = withJitter(s.poll)
		}
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

// processBatch returns true when at least one row was claimed. It stops at
// the first row that could not be settled.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed []models.OutboxEvent
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		claimed, err = s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		return err
	}); err != nil {
		return false, fmt.Errorf("claim outbox batch: %w", err)
	}

	for _, event := range claimed {
		if err := s.processEvent(ctx, event); err != nil {
			return true, err
		}
	}
	return len(claimed) > 0, nil
}

func (s *Service) processEvent(ctx context.Context, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonDecodeFailed, err, event.AttemptCount)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, defaultDeliveryTimeout)
	err = s.publisher.Deliver(deliverCtx, event, resolved)
	cancel()

	fields := s.eventFields(event, resolved)
	var nonRetry registry.NonRetryableError
	switch attempt := event.AttemptCount + 1; {
	case err == nil:
		if err := s.settle(ctx, func(tx *gorm.DB) error { return s.repo.MarkPublishedTx(tx, event.ID) }); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncDelivered(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event delivered")
		return nil
	case errors.As(err, &nonRetry):
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonNonRetryable, err, event.AttemptCount)
	case attempt >= s.maxAttempts:
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max delivery attempts reached: %w", err), attempt)
	default:
		fields["attempt_count"] = attempt
		s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "outbox delivery failed, will retry")
		if markErr := s.settle(ctx, func(tx *gorm.DB) error { return s.repo.MarkFailedTx(tx, event.ID, err) }); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		s.metrics.IncFailed(string(event.EventType))
		return nil
	}
}

// deadLetter copies the row into the DLQ and parks it in one transaction.
func (s *Service) deadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, attempts int) error {
	fields := s.eventFields(event, nil)
	fields["error_reason"] = reason
	fields["attempt_count"] = attempts
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event moved to dlq")

	entry := event.DeadLetter(reason, cause, attempts, time.Now())
	if err := s.settle(ctx, func(tx *gorm.DB) error {
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		return nil
	}); err != nil {
		return err
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

// settle writes delivery bookkeeping even when ctx was canceled mid-delivery.
func (s *Service) settle(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithTx(context.WithoutCancel(ctx), fn)
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"publisher":      s.publisher.Name(),
	}
	if env := envelopeOf(resolved); env.EventID != "" {
		fields["event_id"] = env.EventID
		fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	}
	if resolved != nil && resolved.Descriptor.Topic != "" {
		fields["topic"] = resolved.Descriptor.Topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextBackoff doubles current, starting from base, and caps it at limit.
func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func envelopeOf(resolved *registry.ResolvedEvent) outbox.PayloadEnvelope {
	if resolved == nil {
		return outbox.PayloadEnvelope{}
	}
	return resolved.Envelope
}
