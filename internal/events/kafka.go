package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// keyed is implemented by events that carry a partition key.
type keyed interface {
	EventKey() string
}

// EventKey keeps a challenge's verifications on one partition.
func (e ExpenseVerified) EventKey() string { return e.ChallengeID }

// Kafka publishes JSON-encoded events with a kafka-go writer.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka returns a publisher writing to brokers. The topic is chosen
// per message.
func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafka.Message{Topic: topic, Value: data}
	if ke, ok := event.(keyed); ok {
		msg.Key = []byte(ke.EventKey())
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
