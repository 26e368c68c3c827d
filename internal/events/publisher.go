// Package events publishes portfolio changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-tracker-go/internal/models"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	CoinCreated        = "COIN_CREATED"
	CoinDeleted        = "COIN_DELETED"
	TransactionCreated = "TRANSACTION_CREATED"
	TransactionUpdated = "TRANSACTION_UPDATED"
	TransactionDeleted = "TRANSACTION_DELETED"
)

// Event describes one committed change. Coin carries the position after the change.
type Event struct {
	EventType   string              `json:"eventType"`
	Symbol      string              `json:"symbol"`
	Coin        *models.Coin        `json:"coin,omitempty"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Publisher is implemented by every event sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by symbol, so that all
// changes of one coin land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
