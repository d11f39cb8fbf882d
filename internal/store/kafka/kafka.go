// Package kafka wraps segmentio/kafka-go as the opaque notification
// publish sink described in spec.md §1/§6: topic
// serrano_telemetry_notifications, JSON-encoded values, gzip
// compression, synchronous flush.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
)

// Publisher is a thin handle over one Kafka topic writer.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:        kafkago.TCP(cfg.Brokers...),
		Topic:       cfg.Topic,
		Balancer:    &kafkago.LeastBytes{},
		Compression: kafkago.Gzip,
		RequiredAcks: kafkago.RequireOne,
	}
	return &Publisher{writer: w, logger: logger}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish JSON-encodes value and flushes it synchronously, per
// spec.md §4.7/§7: a publish failure is logged and dropped, never
// retried in-process.
func (p *Publisher) Publish(ctx context.Context, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: body,
	})
	if err != nil {
		p.logger.Error("notification publish failed", zap.String("key", key), zap.Error(err))
	}
	return err
}
