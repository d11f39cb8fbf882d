// Package controller implements the Agent Telemetry Controller (C3): a
// single-writer event dispatcher that fans access-interface events to
// the collector, data engine, and notifier (spec.md §4.3/§9).
package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/event"
)

// Collector is the subset of C4 the controller drives: it maintains the
// poll-set registry that the periodic timer task iterates.
type Collector interface {
	Register(probeUUID, clusterUUID, url, probeType string)
	Deregister(probeUUID string)
}

// DataEngine is the subset of C5 the controller drives.
type DataEngine interface {
	HandleRegistration(ctx context.Context, e event.Event) error
	HandleDeregistration(ctx context.Context, e event.Event) error
	HandleInventory(ctx context.Context, e event.Event) error
	HandleMonitor(ctx context.Context, e event.Event) error
	HandleDeploymentPost(ctx context.Context, e event.Event) error
	HandleDeploymentDelete(ctx context.Context, e event.Event) error
	HandleDeploymentSpecificMetrics(ctx context.Context, e event.Event) error
}

// Notifier is the subset of C7 the controller drives.
type Notifier interface {
	NotifyUp(ctx context.Context, probeUUID string, probeType string)
	NotifyDown(ctx context.Context, probeUUID string, probeType string)
}

// Controller drains a channel of events and dispatches each by action:
// registration and deregistration go to the collector, the data engine
// and the notifier; every other known action goes to the data engine
// alone.
type Controller struct {
	events    chan event.Event
	collector Collector
	engine    DataEngine
	notify    Notifier
	logger    *zap.Logger
}

func New(collector Collector, engine DataEngine, notify Notifier, logger *zap.Logger) *Controller {
	return &Controller{
		events:    make(chan event.Event, 256),
		collector: collector,
		engine:    engine,
		notify:    notify,
		logger:    logger,
	}
}

// Emit is called by the access interface (C2). It queues the event on a
// 256-slot buffered channel and blocks only while that buffer is full.
func (c *Controller) Emit(e event.Event) {
	c.events <- e
}

// Run drains the event channel until ctx is cancelled. It is the one
// dispatcher goroutine named in spec.md §5.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.events:
			c.dispatch(ctx, e)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, e event.Event) {
	var err error
	switch e.Action {
	case event.ActionRegistration:
		c.collector.Register(e.ProbeUUID, e.ClusterUUID, e.URL, string(e.ProbeType))
		err = c.engine.HandleRegistration(ctx, e)
		c.notify.NotifyUp(ctx, e.ProbeUUID, string(e.ProbeType))
	case event.ActionDeregistration:
		c.collector.Deregister(e.ProbeUUID)
		err = c.engine.HandleDeregistration(ctx, e)
		c.notify.NotifyDown(ctx, e.ProbeUUID, string(e.ProbeType))
	case event.ActionInventory:
		err = c.engine.HandleInventory(ctx, e)
	case event.ActionMonitor:
		err = c.engine.HandleMonitor(ctx, e)
	case event.ActionDeploymentPost:
		err = c.engine.HandleDeploymentPost(ctx, e)
	case event.ActionDeploymentDelete:
		err = c.engine.HandleDeploymentDelete(ctx, e)
	case event.ActionDeploymentSpecificMetrics:
		err = c.engine.HandleDeploymentSpecificMetrics(ctx, e)
	case event.ActionConfiguration:
		// Already applied to the collector by the access interface.
		return
	default:
		c.logger.Warn("dropping event with unknown action", zap.String("action", string(e.Action)))
		return
	}
	if err != nil {
		c.logger.Error("event handling failed", zap.String("action", string(e.Action)), zap.Error(err))
	}
}
