// Package collector implements the Agent Data Collector (C4): the
// periodic poll loop over registered probes, liveness flagging, and the
// probe registry mutated by the controller and read by the timer task
// (spec.md §4.4/§5).
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

// registration is the collector's view of one probe, per spec.md §4.4.
type registration struct {
	URL         string
	Type        model.ProbeType
	ClusterUUID string
}

// DataEngine is the subset of C5 the collector feeds monitor results
// into.
type DataEngine interface {
	HandleProbeMonitorResult(ctx context.Context, probeUUID string, clusterUUID string, pt model.ProbeType, envelope *model.MonitorEnvelope) error
	LoadBootProbes(ctx context.Context) (map[string]BootProbe, error)
}

// BootProbe is the shape LoadBootProbes returns for each probe this
// agent already owns, so the collector can re-populate its registry at
// startup (spec.md §4.4's "Boot: load probes owned by this agent").
type BootProbe struct {
	URL         string
	Type        model.ProbeType
	ClusterUUID string
}

// Notifier is the subset of C7 the collector drives on DOWN transition.
type Notifier interface {
	NotifyDown(ctx context.Context, probeUUID string, probeType string)
}

// Collector owns the probe registry, the flagged-probe set, and the
// poll ticker. All mutable state is guarded by mu, since it is written
// by the controller's dispatcher goroutine and read by the timer
// goroutine (spec.md §5).
type Collector struct {
	mu       sync.Mutex
	probes   map[string]registration
	flagged  map[string]bool

	cfg        config.AgentConfig
	engine     DataEngine
	notifier   Notifier
	httpClient *http.Client
	redis      *redis.Client
	logger     *zap.Logger

	activeMonitoring bool
	queryInterval    time.Duration
}

func New(cfg config.AgentConfig, engine DataEngine, notifier Notifier, rdb *redis.Client, logger *zap.Logger) *Collector {
	return &Collector{
		probes:           make(map[string]registration),
		flagged:          make(map[string]bool),
		cfg:              cfg,
		engine:           engine,
		notifier:         notifier,
		httpClient:       &http.Client{Timeout: cfg.Timeout()},
		redis:            rdb,
		logger:           logger,
		activeMonitoring: cfg.ActiveMonitoring,
		queryInterval:    cfg.PollInterval(),
	}
}

// Register adds or replaces a probe registration. A fresh registration
// always clears the flagged state, per spec.md §4.4: "There is no
// automatic UP after re-success — UP is re-emitted only on a fresh
// registration event."
func (c *Collector) Register(probeUUID, clusterUUID, url, probeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[probeUUID] = registration{URL: url, Type: model.ProbeType(probeType), ClusterUUID: clusterUUID}
	delete(c.flagged, probeUUID)
	c.syncFlagToRedis(probeUUID, false)
}

// Lookup implements access.Registry for the GET/DELETE /agent/register
// pull-through paths.
func (c *Collector) Lookup(probeUUID string) (url string, probeType string, clusterUUID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, found := c.probes[probeUUID]
	if !found {
		return "", "", "", false
	}
	return reg.URL, string(reg.Type), reg.ClusterUUID, true
}

// RegisteredEntity is one row of ListEntities' snapshot.
type RegisteredEntity struct {
	ProbeUUID   string `json:"probe_uuid"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	ClusterUUID string `json:"cluster_uuid"`
	Flagged     bool   `json:"flagged"`
}

// ListEntities snapshots every probe currently registered with this
// agent, the supplemented GET /agent/entities endpoint (SPEC_FULL.md
// §4.11, original source's accessInterface.get_entities).
func (c *Collector) ListEntities() []RegisteredEntity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RegisteredEntity, 0, len(c.probes))
	for probeUUID, reg := range c.probes {
		out = append(out, RegisteredEntity{
			ProbeUUID:   probeUUID,
			URL:         reg.URL,
			Type:        string(reg.Type),
			ClusterUUID: reg.ClusterUUID,
			Flagged:     c.flagged[probeUUID],
		})
	}
	return out
}

func (c *Collector) Deregister(probeUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.probes, probeUUID)
	delete(c.flagged, probeUUID)
	c.syncFlagToRedis(probeUUID, false)
}

// ApplyConfiguration live-mutates query_interval/active_monitoring
// without a restart (original source's set_query_interval /
// set_active_monitoring, supplemented per SPEC_FULL.md §4.11).
func (c *Collector) ApplyConfiguration(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case "query_interval":
		seconds, ok := value.(float64)
		if !ok {
			return fmt.Errorf("query_interval must be numeric")
		}
		c.queryInterval = time.Duration(seconds) * time.Second
	case "active_monitoring":
		enabled, ok := value.(bool)
		if !ok {
			return fmt.Errorf("active_monitoring must be boolean")
		}
		c.activeMonitoring = enabled
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}

// LoadBoot pings every probe this agent owned before restart and
// registers only the survivors, per spec.md §4.4.
func (c *Collector) LoadBoot(ctx context.Context) {
	boot, err := c.engine.LoadBootProbes(ctx)
	if err != nil {
		c.logger.Error("load boot probes failed", zap.Error(err))
		return
	}
	for probeUUID, p := range boot {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
		ok := c.ping(pingCtx, p.URL)
		cancel()
		if !ok {
			c.logger.Warn("boot probe unreachable, not registering", zap.String("probe_uuid", probeUUID))
			continue
		}
		c.mu.Lock()
		c.probes[probeUUID] = registration{URL: p.URL, Type: p.Type, ClusterUUID: p.ClusterUUID}
		c.mu.Unlock()
	}
}

func (c *Collector) ping(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// Run drives the periodic poll loop, the timer task named in spec.md
// §5, until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.currentInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
			ticker.Reset(c.currentInterval())
		}
	}
}

func (c *Collector) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryInterval <= 0 {
		return c.cfg.PollInterval()
	}
	return c.queryInterval
}

func (c *Collector) tick(ctx context.Context) {
	c.mu.Lock()
	if !c.activeMonitoring {
		c.mu.Unlock()
		return
	}
	snapshot := make(map[string]registration, len(c.probes))
	for k, v := range c.probes {
		snapshot[k] = v
	}
	c.mu.Unlock()

	for probeUUID, reg := range snapshot {
		c.pollOne(ctx, probeUUID, reg)
	}
}

func (c *Collector) pollOne(ctx context.Context, probeUUID string, reg registration) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, reg.URL+"/monitor", nil)
	if err != nil {
		c.markFailed(ctx, probeUUID)
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil || resp.StatusCode/100 != 2 {
		if resp != nil {
			resp.Body.Close()
		}
		c.markFailed(ctx, probeUUID)
		return
	}
	defer resp.Body.Close()

	var envelope model.MonitorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.markFailed(ctx, probeUUID)
		return
	}

	if err := c.engine.HandleProbeMonitorResult(ctx, probeUUID, reg.ClusterUUID, reg.Type, &envelope); err != nil {
		c.logger.Error("monitor write failed", zap.String("probe_uuid", probeUUID), zap.Error(err))
	}
	c.markSucceeded(probeUUID)
}

func (c *Collector) markFailed(ctx context.Context, probeUUID string) {
	c.mu.Lock()
	alreadyFlagged := c.flagged[probeUUID]
	if !alreadyFlagged {
		c.flagged[probeUUID] = true
	}
	probeType := ""
	if reg, ok := c.probes[probeUUID]; ok {
		probeType = string(reg.Type)
	}
	c.mu.Unlock()

	if !alreadyFlagged {
		c.syncFlagToRedis(probeUUID, true)
		c.notifier.NotifyDown(ctx, probeUUID, probeType)
	}
}

func (c *Collector) markSucceeded(probeUUID string) {
	c.mu.Lock()
	wasFlagged := c.flagged[probeUUID]
	delete(c.flagged, probeUUID)
	c.mu.Unlock()
	if wasFlagged {
		c.syncFlagToRedis(probeUUID, false)
	}
}

// syncFlagToRedis mirrors the flagged state into Redis so that a
// horizontally-scaled agent deployment (multiple replicas behind the
// same probe set, e.g. during a rolling upgrade) shares one liveness
// view instead of each replica re-flagging independently. Best-effort:
// errors are logged, never fatal, matching spec.md §7's "storage write"
// failure policy.
func (c *Collector) syncFlagToRedis(probeUUID string, down bool) {
	if c.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := "serrano:agent:flagged:" + probeUUID
	var err error
	if down {
		err = c.redis.Set(ctx, key, "1", 0).Err()
	} else {
		err = c.redis.Del(ctx, key).Err()
	}
	if err != nil {
		c.logger.Warn("redis liveness sync failed", zap.String("probe_uuid", probeUUID), zap.Error(err))
	}
}
