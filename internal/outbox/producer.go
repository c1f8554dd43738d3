package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// SignalProducer writes signal messages to the configured brokers.
type SignalProducer struct {
	writer *kafka.Writer
}

// NewSignalProducer creates a SignalProducer.
func NewSignalProducer(brokers []string) *SignalProducer {
	return &SignalProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// WriteMessages publishes messages to the given topic.
func (p *SignalProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close releases the underlying writer.
func (p *SignalProducer) Close() error {
	return p.writer.Close()
}
