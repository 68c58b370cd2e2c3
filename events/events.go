// Package events publishes payment ledger changes to a message broker so
// other services can react to new and cancelled subscriptions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.vocdoni.io/dvote/log"
)

const (
	TopicPaymentPaid      = "payment.paid"
	TopicPaymentCancelled = "payment.cancelled"
)

// PaymentEvent describes a row appended to the payments ledger.
type PaymentEvent struct {
	Topic          string    `json:"-"`
	TransactionKey string    `json:"transactionKey"`
	CustomerID     string    `json:"customerId,omitempty"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	EndGraceAt     time.Time `json:"endGraceAt"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher publishes payment events.
type Publisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PaymentEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// KafkaPublisher publishes events to Kafka with a synchronous producer.
// Messages are keyed by transaction key so the events of one subscription
// keep their order within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.ClientID = "magazine-backend"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("cannot create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish sends the event and waits for the broker acknowledgement.
func (k *KafkaPublisher) Publish(ctx context.Context, event PaymentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Topic == "" {
		return fmt.Errorf("event without topic")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("cannot encode event: %w", err)
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     event.Topic,
		Key:       sarama.StringEncoder(event.TransactionKey),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("cannot publish %s event: %w", event.Topic, err)
	}
	log.Debugw("payment event published",
		"topic", event.Topic,
		"transactionKey", event.TransactionKey,
		"partition", partition,
		"offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
