// Package stream publishes events to Kafka.
// This is part of the platform layer and contains no business logic.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"leadflow_backend/platform/config"

	"github.com/segmentio/kafka-go"
)

// Producer writes JSON messages to a single topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns nil when no brokers are configured.
func NewProducer(cfg config.KafkaConfig) *Producer {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        cfg.GetKafkaGovernanceTopic(),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Send writes value keyed by key, tagging the message with its event type.
func (p *Producer) Send(ctx context.Context, eventType, key string, value any) error {
	if p == nil || p.writer == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
