// Package notify implements the Notification Engine (C7): liveness and
// state events published to the Kafka-compatible notification bus
// (spec.md §4.7).
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/store/kafka"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// LivenessEvent is the fixed schema for probe UP/DOWN notifications,
// per spec.md §4.7.
type LivenessEvent struct {
	EntityID  string    `json:"entity_id"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine wraps the Kafka publisher.
type Engine struct {
	publisher *kafka.Publisher
	logger    *zap.Logger
}

func New(publisher *kafka.Publisher, logger *zap.Logger) *Engine {
	return &Engine{publisher: publisher, logger: logger}
}

func (e *Engine) NotifyUp(ctx context.Context, probeUUID, probeType string) {
	e.publish(ctx, probeUUID, probeType, StatusUp)
}

func (e *Engine) NotifyDown(ctx context.Context, probeUUID, probeType string) {
	e.publish(ctx, probeUUID, probeType, StatusDown)
}

func (e *Engine) publish(ctx context.Context, probeUUID, probeType, status string) {
	evt := LivenessEvent{
		EntityID:  probeUUID,
		Status:    status,
		Type:      probeType,
		Timestamp: time.Now(),
	}
	if err := e.publisher.Publish(ctx, probeUUID, evt); err != nil {
		e.logger.Error("liveness notification failed", zap.String("probe_uuid", probeUUID), zap.String("status", status), zap.Error(err))
	}
}

// PublishOpaque forwards an arbitrary domain event untouched, per
// spec.md §4.7 ("other domain events may be forwarded opaquely").
func (e *Engine) PublishOpaque(ctx context.Context, key string, payload any) {
	if err := e.publisher.Publish(ctx, key, payload); err != nil {
		e.logger.Error("opaque notification failed", zap.String("key", key), zap.Error(err))
	}
}
