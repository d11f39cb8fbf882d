package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

type mockEngine struct{ mock.Mock }

func (m *mockEngine) HandleProbeMonitorResult(ctx context.Context, probeUUID, clusterUUID string, pt model.ProbeType, envelope *model.MonitorEnvelope) error {
	return m.Called(ctx, probeUUID, clusterUUID, pt, envelope).Error(0)
}

func (m *mockEngine) LoadBootProbes(ctx context.Context) (map[string]BootProbe, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]BootProbe), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyDown(ctx context.Context, probeUUID, probeType string) {
	m.Called(ctx, probeUUID, probeType)
}

func newTestCollector() (*Collector, *mockEngine, *mockNotifier) {
	engine := &mockEngine{}
	notifier := &mockNotifier{}
	cfg := config.AgentConfig{QueryInterval: 60, QueryTimeout: 1, ActiveMonitoring: true}
	return New(cfg, engine, notifier, nil, zap.NewNop()), engine, notifier
}

func TestRegisterClearsFlaggedState(t *testing.T) {
	c, _, _ := newTestCollector()
	c.flagged["p1"] = true

	c.Register("p1", "c1", "http://probe", "Probe.k8s")

	url, probeType, clusterUUID, ok := c.Lookup("p1")
	assert.True(t, ok)
	assert.Equal(t, "http://probe", url)
	assert.Equal(t, "Probe.k8s", probeType)
	assert.Equal(t, "c1", clusterUUID)
	assert.False(t, c.flagged["p1"])
}

func TestDeregisterRemovesProbe(t *testing.T) {
	c, _, _ := newTestCollector()
	c.Register("p1", "c1", "http://probe", "Probe.k8s")

	c.Deregister("p1")

	_, _, _, ok := c.Lookup("p1")
	assert.False(t, ok)
}

func TestMarkFailedNotifiesDownExactlyOnce(t *testing.T) {
	c, _, notifier := newTestCollector()
	c.Register("p1", "c1", "http://probe", "Probe.k8s")
	notifier.On("NotifyDown", mock.Anything, "p1", "Probe.k8s").Return().Once()

	c.markFailed(context.Background(), "p1")
	c.markFailed(context.Background(), "p1")

	notifier.AssertExpectations(t)
	assert.True(t, c.flagged["p1"])
}

func TestMarkSucceededClearsFlag(t *testing.T) {
	c, _, notifier := newTestCollector()
	c.Register("p1", "c1", "http://probe", "Probe.k8s")
	notifier.On("NotifyDown", mock.Anything, "p1", "Probe.k8s").Return().Once()

	c.markFailed(context.Background(), "p1")
	c.markSucceeded("p1")

	assert.False(t, c.flagged["p1"])
}

func TestApplyConfigurationQueryInterval(t *testing.T) {
	c, _, _ := newTestCollector()

	err := c.ApplyConfiguration("query_interval", float64(30))
	assert.NoError(t, err)
	assert.Equal(t, float64(30), c.queryInterval.Seconds())
}

func TestApplyConfigurationRejectsWrongType(t *testing.T) {
	c, _, _ := newTestCollector()

	err := c.ApplyConfiguration("active_monitoring", "yes")
	assert.Error(t, err)
}

func TestApplyConfigurationRejectsUnknownKey(t *testing.T) {
	c, _, _ := newTestCollector()

	err := c.ApplyConfiguration("bogus", 1.0)
	assert.Error(t, err)
}

func TestListEntitiesReflectsFlaggedState(t *testing.T) {
	c, _, notifier := newTestCollector()
	c.Register("p1", "c1", "http://probe", "Probe.k8s")
	notifier.On("NotifyDown", mock.Anything, "p1", "Probe.k8s").Return().Once()
	c.markFailed(context.Background(), "p1")

	entities := c.ListEntities()

	assert.Len(t, entities, 1)
	assert.True(t, entities[0].Flagged)
}
