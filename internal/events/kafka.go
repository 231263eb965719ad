package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	Writer MessageWriter
}

// NewKafkaPublisher returns a publisher whose writer routes each message by
// its own topic. Messages with the same key land on the same partition.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{Writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}
