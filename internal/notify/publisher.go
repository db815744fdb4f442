package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// StatusChangedEvent is the event type published after a status transition.
const StatusChangedEvent = "request.status_changed"

// EventPublisher emits domain events to downstream consumers.
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, change StatusChange) error
	Close() error
}

// KafkaPublisher writes status change events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// Ensure KafkaPublisher implements EventPublisher
var _ EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher. SASL/PLAIN over TLS is used when a username is set.
func NewKafkaPublisher(broker, topic, username, password string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
	if username != "" {
		writer.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: username, Password: password},
			TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &KafkaPublisher{writer: writer}
}

type statusChangedMessage struct {
	Type string `json:"type"`
	StatusChange
}

func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, change StatusChange) error {
	value, err := json.Marshal(statusChangedMessage{Type: StatusChangedEvent, StatusChange: change})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.RequestID),
		Value: value,
		Time:  change.ActionAt,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", StatusChangedEvent, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
