// Package consumer applies inventory events read from Kafka.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/enums"
	"github.com/angelmondragon/retailops-backend/pkg/kafka"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

// Name scopes idempotency keys for this consumer.
const Name = "inventory-worker"

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

type eventHandler interface {
	Handle(ctx context.Context, event *registry.ResolvedEvent) (inventory.Outcome, error)
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dlqWriter interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type Params struct {
	Reader      kafka.Consumer
	Registry    resolver
	Handler     eventHandler
	Idempotency idempotencyChecker
	DB          txRunner
	DLQ         dlqWriter
	Logger      *logger.Logger
	Metrics     *metrics.OutboxMetrics
	MaxAttempts int
	RetryDelay  time.Duration
}

// Consumer commits an offset only after the message was applied, skipped as
// a duplicate, or written to the DLQ.
type Consumer struct {
	reader      kafka.Consumer
	registry    resolver
	handler     eventHandler
	idem        idempotencyChecker
	db          txRunner
	dlq         dlqWriter
	logg        *logger.Logger
	metrics     *metrics.OutboxMetrics
	maxAttempts int
	retryDelay  time.Duration
}

func New(params Params) (*Consumer, error) {
	switch {
	case params.Reader == nil:
		return nil, errors.New("kafka reader is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Handler == nil:
		return nil, errors.New("event handler is required")
	case params.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := params.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &Consumer{
		reader:      params.Reader,
		registry:    params.Registry,
		handler:     params.Handler,
		idem:        params.Idempotency,
		db:          params.DB,
		dlq:         params.DLQ,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: attempts,
		retryDelay:  delay,
	}, nil
}

// Run consumes until ctx is canceled or a message can be neither handled nor
// dead-lettered. In the latter case the offset stays uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := c.Process(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Process handles one message. A nil error means the offset may be committed.
func (c *Consumer) Process(ctx context.Context, msg kafkago.Message) error {
	fields := map[string]any{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	event, err := eventFromMessage(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "undecodable inventory message")
		if event == nil {
			// nothing to replay from; the DLQ needs typed ids
			return nil
		}
		return c.deadLetter(logCtx, *event, enums.OutboxDLQReasonDecodeFailed, err, 0)
	}
	fields["outbox_id"] = event.ID.String()
	fields["event_type"] = event.EventType
	fields["aggregate_id"] = event.AggregateID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	resolved, err := c.registry.Resolve(*event)
	if err != nil {
		return c.deadLetter(logCtx, *event, enums.OutboxDLQReasonDecodeFailed, err, 0)
	}
	eventID := strings.TrimSpace(resolved.Envelope.EventID)
	if eventID == "" {
		eventID = event.ID.String()
	}
	logCtx = c.logg.WithEventID(logCtx, eventID)

	already, err := c.idem.CheckAndMarkProcessed(logCtx, Name, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	attempt, outcome, err := c.handleWithRetry(logCtx, resolved)
	if err == nil {
		c.metrics.IncDelivered(string(event.EventType))
		c.logg.Info(c.logg.WithField(logCtx, "outcome", outcome), "inventory event handled")
		return nil
	}

	if delErr := c.idem.Delete(context.WithoutCancel(logCtx), Name, eventID); delErr != nil {
		c.logg.Error(logCtx, "failed to release idempotency marker", delErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	reason := enums.OutboxDLQReasonMaxAttempts
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		reason = enums.OutboxDLQReasonNonRetryable
	}
	return c.deadLetter(logCtx, *event, reason, err, attempt)
}

func (c *Consumer) handleWithRetry(ctx context.Context, resolved *registry.ResolvedEvent) (int, inventory.Outcome, error) {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var outcome inventory.Outcome
		outcome, err = c.handler.Handle(ctx, resolved)
		if err == nil {
			return attempt, outcome, nil
		}
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) || attempt == c.maxAttempts {
			return attempt, "", err
		}
		c.metrics.IncFailed(string(resolved.Descriptor.EventType))
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "inventory handler failed, retrying")

		timer := time.NewTimer(c.retryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, "", ctx.Err()
		case <-timer.C:
		}
	}
	return c.maxAttempts, "", err
}

func (c *Consumer) deadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, attempts int) error {
	entry := event.DeadLetter(reason, cause, attempts, time.Now())
	if err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		return c.dlq.InsertTx(tx, entry)
	}); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	c.metrics.IncDeadLettered(string(event.EventType), string(reason))
	c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "inventory event moved to dlq")
	return nil
}

// eventFromMessage rebuilds the outbox row from headers and value. The
// returned event is non-nil whenever its ids could be read, so the caller can
// still dead-letter it.
func eventFromMessage(msg kafkago.Message) (*models.OutboxEvent, error) {
	id, err := uuid.Parse(kafka.Header(msg, kafka.HeaderOutboxID))
	if err != nil {
		return nil, fmt.Errorf("outbox_id header: %w", err)
	}
	aggregateID, err := uuid.Parse(kafka.Header(msg, kafka.HeaderAggregateID))
	if err != nil {
		return nil, fmt.Errorf("aggregate_id header: %w", err)
	}
	event := &models.OutboxEvent{
		ID:            id,
		EventType:     enums.OutboxEventType(kafka.Header(msg, kafka.HeaderEventType)),
		AggregateType: enums.OutboxAggregateType(kafka.Header(msg, kafka.HeaderAggregateType)),
		AggregateID:   aggregateID,
		Payload:       msg.Value,
	}
	if !event.EventType.IsValid() {
		return event, fmt.Errorf("unknown event_type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return event, fmt.Errorf("unknown aggregate_type %q", event.AggregateType)
	}
	if len(msg.Value) == 0 {
		return event, errors.New("empty message value")
	}
	return event, nil
}
