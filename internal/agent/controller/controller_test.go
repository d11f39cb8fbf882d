package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/event"
)

type mockCollector struct{ mock.Mock }

func (m *mockCollector) Register(probeUUID, clusterUUID, url, probeType string) {
	m.Called(probeUUID, clusterUUID, url, probeType)
}
func (m *mockCollector) Deregister(probeUUID string) { m.Called(probeUUID) }

type mockEngine struct{ mock.Mock }

func (m *mockEngine) HandleRegistration(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleDeregistration(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleInventory(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleMonitor(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleDeploymentPost(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleDeploymentDelete(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEngine) HandleDeploymentSpecificMetrics(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyUp(ctx context.Context, probeUUID, probeType string) {
	m.Called(ctx, probeUUID, probeType)
}
func (m *mockNotifier) NotifyDown(ctx context.Context, probeUUID, probeType string) {
	m.Called(ctx, probeUUID, probeType)
}

func TestDispatchRegistrationUpdatesRegistryAndNotifiesUp(t *testing.T) {
	coll := &mockCollector{}
	engine := &mockEngine{}
	notifier := &mockNotifier{}
	ctrl := New(coll, engine, notifier, zap.NewNop())

	e := event.Event{Action: event.ActionRegistration, ProbeUUID: "p1", ClusterUUID: "c1", URL: "http://probe", ProbeType: "Probe.k8s"}
	coll.On("Register", "p1", "c1", "http://probe", "Probe.k8s").Return()
	engine.On("HandleRegistration", mock.Anything, e).Return(nil)
	notifier.On("NotifyUp", mock.Anything, "p1", "Probe.k8s").Return()

	ctrl.dispatch(context.Background(), e)

	coll.AssertExpectations(t)
	engine.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestDispatchDeregistrationRemovesFromRegistryAndNotifiesDown(t *testing.T) {
	coll := &mockCollector{}
	engine := &mockEngine{}
	notifier := &mockNotifier{}
	ctrl := New(coll, engine, notifier, zap.NewNop())

	e := event.Event{Action: event.ActionDeregistration, ProbeUUID: "p1", ProbeType: "Probe.k8s"}
	coll.On("Deregister", "p1").Return()
	engine.On("HandleDeregistration", mock.Anything, e).Return(nil)
	notifier.On("NotifyDown", mock.Anything, "p1", "Probe.k8s").Return()

	ctrl.dispatch(context.Background(), e)

	coll.AssertExpectations(t)
	engine.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestDispatchUnknownActionIsDropped(t *testing.T) {
	coll := &mockCollector{}
	engine := &mockEngine{}
	notifier := &mockNotifier{}
	ctrl := New(coll, engine, notifier, zap.NewNop())

	ctrl.dispatch(context.Background(), event.Event{Action: "bogus"})

	coll.AssertNotCalled(t, "Register")
	engine.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestEmitDoesNotBlock(t *testing.T) {
	ctrl := New(&mockCollector{}, &mockEngine{}, &mockNotifier{}, zap.NewNop())
	assert.NotPanics(t, func() {
		ctrl.Emit(event.Event{Action: event.ActionMonitor})
	})
}
