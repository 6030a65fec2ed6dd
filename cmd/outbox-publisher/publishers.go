package main

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/retailops-backend/internal/inventory"
	"github.com/angelmondragon/retailops-backend/pkg/db/models"
	"github.com/angelmondragon/retailops-backend/pkg/kafka"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
	"github.com/angelmondragon/retailops-backend/pkg/outbox/registry"
)

type eventHandler interface {
	Handle(ctx context.Context, event *registry.ResolvedEvent) (inventory.Outcome, error)
}

// dispatchPublisher hands events to the in-process inventory handlers.
type dispatchPublisher struct {
	handler eventHandler
	logg    *logger.Logger
}

func newDispatchPublisher(handler eventHandler, logg *logger.Logger) (*dispatchPublisher, error) {
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	return &dispatchPublisher{handler: handler, logg: logg}, nil
}

func (p *dispatchPublisher) Name() string { return "dispatch" }

func (p *dispatchPublisher) Deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	outcome, err := p.handler.Handle(ctx, resolved)
	if err != nil {
		return err
	}
	if p.logg != nil {
		p.logg.Debug(p.logg.WithFields(ctx, map[string]any{
			"outbox_id": event.ID.String(),
			"outcome":   outcome,
		}), "inventory handler finished")
	}
	return nil
}

// kafkaPublisher writes the stored envelope to the inventory topic keyed by
// aggregate id.
type kafkaPublisher struct {
	producer kafka.Producer
}

func newKafkaPublisher(producer kafka.Producer) (*kafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	return &kafkaPublisher{producer: producer}, nil
}

func (p *kafkaPublisher) Name() string { return "kafka" }

func (p *kafkaPublisher) Deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := kafkago.Message{
		Key:   []byte(event.AggregateID.String()),
		Value: event.Payload,
		Headers: kafka.Headers(map[string]string{
			kafka.HeaderOutboxID:      event.ID.String(),
			kafka.HeaderEventType:     string(event.EventType),
			kafka.HeaderAggregateType: string(event.AggregateType),
			kafka.HeaderAggregateID:   event.AggregateID.String(),
			kafka.HeaderEventID:       envelopeOf(resolved).EventID,
		}),
	}
	return p.producer.WriteMessages(ctx, msg)
}
