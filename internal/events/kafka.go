package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopicPrefix is prepended to the event kind to form the topic.
const DefaultTopicPrefix = "ledger."

// KafkaPublisher writes events as JSON messages keyed by subject ID, so all
// events about one entry or transaction land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	prefix string
}

// NewKafkaPublisher creates a publisher for brokers. The topic of each
// message is prefix + event kind.
func NewKafkaPublisher(brokers []string, prefix string) *KafkaPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
		prefix: prefix,
	}
}

// Message renders e as the Kafka message the publisher would send.
func (p *KafkaPublisher) Message(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event: %w", err)
	}
	return kafka.Message{
		Topic: p.prefix + string(e.Kind),
		Key:   []byte(e.SubjectID),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := p.Message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s to kafka: %w", e.Kind, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
