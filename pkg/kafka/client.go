// Package kafka wraps segmentio/kafka-go for the outbox publisher and the
// inventory worker.
package kafka

import (
	"context"
	"errors"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

// Producer writes messages to the configured topic.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads with explicit commits so an offset only advances after the
// message was handled or dead-lettered.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func brokers(cfg config.KafkaConfig) ([]string, error) {
	out := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic is required")
	}
	return out, nil
}

// NewWriter builds a producer that hashes on the message key so events of one
// aggregate land on the same partition.
func NewWriter(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (Producer, error) {
	addrs, err := brokers(cfg)
	if err != nil {
		return nil, err
	}
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(addrs...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: false,
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":   cfg.Topic,
			"brokers": strings.Join(addrs, ","),
		}), "kafka writer configured")
	}
	return writer, nil
}

// NewReader builds a consumer-group reader for the configured topic.
func NewReader(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (Consumer, error) {
	addrs, err := brokers(cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id is required")
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: addrs,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
		// commits are explicit
		CommitInterval: 0,
	})
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":    cfg.Topic,
			"group_id": cfg.GroupID,
		}), "kafka reader configured")
	}
	return reader, nil
}
