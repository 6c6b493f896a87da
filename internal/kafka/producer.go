package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events and account notifications. The writer has
// no default topic, every message names its own.
type Producer struct {
	Writer       MessageWriter
	Topic        string
	AccountTopic string
	Logger       *logger.Logger
	enabled      bool
}

// NewProducer builds the events producer. A disabled config yields a
// producer that only logs.
func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	p := &Producer{Topic: cfg.OrderEvents, AccountTopic: cfg.AccountEvents, Logger: log, enabled: cfg.Enabled}
	if !cfg.Enabled {
		return p
	}
	p.Writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return p
}

// NewProducerWithWriter wires an existing writer, mostly for tests.
func NewProducerWithWriter(w MessageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{Writer: w, Topic: topic, Logger: log, enabled: true}
}

// PublishOrderEvent streams an order event keyed by order number
func (p *Producer) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if !p.enabled || p.Writer == nil {
		p.Logger.LogKafka("SKIP", p.Topic, fmt.Sprintf("%s %s (kafka disabled)", event.Type, event.OrderNumber))
		return nil
	}

	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("%s %s", event.Type, event.OrderNumber))
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic,
		Key:   []byte(event.OrderNumber),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", event.Type, event.OrderNumber, err))
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NotifyAccount publishes an account token for the mailer, keyed by user.
// The token itself is never logged.
func (p *Producer) NotifyAccount(ctx context.Context, n models.AccountNotification) error {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	msgBytes, err := json.Marshal(n)
	if err != nil {
		return err
	}

	if !p.enabled || p.Writer == nil {
		p.Logger.LogKafka("SKIP", p.AccountTopic, fmt.Sprintf("%s for user %s (kafka disabled)", n.Type, n.UserID))
		return nil
	}

	p.Logger.LogKafka("PUBLISH", p.AccountTopic, fmt.Sprintf("%s for user %s", n.Type, n.UserID))
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: p.AccountTopic,
		Key:   []byte(n.UserID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(n.Type)},
		},
	})
	if err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for user %s: %v", n.Type, n.UserID, err))
		return fmt.Errorf("publish %s: %w", n.Type, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}
