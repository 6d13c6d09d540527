// Package event connects the service to the pub/sub transport: a
// kafka-go producer, a transactional outbox with a retrying drain loop,
// and the inbound consumer that triggers dispatch.
package event

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer publishes messages to the external pub/sub transport.
type Producer interface {
	SendMessage(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// KafkaProducer is a Producer backed by a shared kafka-go writer.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a producer for the given brokers. Messages
// are keyed so events for one order land on one partition.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
		},
	}
}

// SendMessage publishes one message to the given topic.
func (p *KafkaProducer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Ensure the concrete type implements the interface.
var _ Producer = (*KafkaProducer)(nil)
