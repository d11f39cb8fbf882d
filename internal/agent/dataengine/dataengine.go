// Package dataengine implements the Agent Data Engine (C5): the
// operational-store writer, the deployment overlay, and the
// pod-projection step that derives per-deployment metrics from generic
// cluster samples (spec.md §4.5), grounded on
// _examples/original_source/Enhanced_Telemetry_Agent/dataEngine.py.
package dataengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/agent/collector"
	"github.com/ict-serrano/telemetry-fabric/internal/event"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
	"github.com/ict-serrano/telemetry-fabric/internal/store/mongo"
)

// PMDSWriter is the subset of C6 the data engine emits samples to.
type PMDSWriter interface {
	Write(ctx context.Context, s model.Sample) error
}

// Engine implements C5.
type Engine struct {
	store     *mongo.Store
	pmds      PMDSWriter
	agentUUID string
	retention time.Duration
	logger    *zap.Logger

	overlayMu sync.RWMutex
	overlay   map[string]model.DeploymentSelectors
}

func New(store *mongo.Store, pmds PMDSWriter, agentUUID string, retention time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		pmds:      pmds,
		agentUUID: agentUUID,
		retention: retention,
		logger:    logger,
		overlay:   make(map[string]model.DeploymentSelectors),
	}
}

// Bootstrap reconstructs the DeploymentsMonitoring overlay at boot from
// the CTH-written deployments collection, filtered to this agent's
// probes, per spec.md §3.
func (e *Engine) Bootstrap(ctx context.Context) error {
	agent, err := e.loadAgentEntity(ctx)
	if err != nil {
		return err
	}
	clusterUUIDs, err := e.probeClusterUUIDs(ctx, agent.Probes)
	if err != nil {
		return err
	}
	clusterSet := make(map[string]bool, len(clusterUUIDs))
	for _, c := range clusterUUIDs {
		clusterSet[c] = true
	}

	cur, err := e.store.Collection(mongo.CollSerranoDeployments).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("load deployments for bootstrap: %w", err)
	}
	defer cur.Close(ctx)

	e.overlayMu.Lock()
	defer e.overlayMu.Unlock()
	for cur.Next(ctx) {
		var d model.Deployment
		if err := cur.Decode(&d); err != nil {
			e.logger.Warn("skip malformed deployment during bootstrap", zap.Error(err))
			continue
		}
		for clusterUUID, sel := range d.PerCluster {
			if !clusterSet[clusterUUID] {
				continue
			}
			selectors := make([]string, 0, len(sel.Labels))
			for k, v := range sel.Labels {
				selectors = append(selectors, k+"="+v)
			}
			e.overlay[d.DeploymentUUID] = model.DeploymentSelectors{DeploymentUUID: d.DeploymentUUID, Selectors: selectors}
		}
	}
	return nil
}

func (e *Engine) loadAgentEntity(ctx context.Context) (model.Entity, error) {
	var agent model.Entity
	err := e.store.FindOne(ctx, mongo.CollEntities, bson.M{"uuid": e.agentUUID, "type": model.EntityTypeAgent}, &agent)
	if mongo.IsNoDocuments(err) {
		return model.Entity{UUID: e.agentUUID, Type: model.EntityTypeAgent}, nil
	}
	return agent, err
}

func (e *Engine) probeClusterUUIDs(ctx context.Context, probeUUIDs []string) ([]string, error) {
	out := make([]string, 0, len(probeUUIDs))
	for _, p := range probeUUIDs {
		var probe model.Entity
		if err := e.store.FindOne(ctx, mongo.CollEntities, bson.M{"uuid": p}, &probe); err != nil {
			continue
		}
		if probe.ClusterUUID != "" {
			out = append(out, probe.ClusterUUID)
		}
	}
	return out, nil
}

// LoadBootProbes implements collector.DataEngine: the probes this agent
// already owns, for the collector's boot-time re-registration.
func (e *Engine) LoadBootProbes(ctx context.Context) (map[string]collector.BootProbe, error) {
	agent, err := e.loadAgentEntity(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]collector.BootProbe, len(agent.Probes))
	for _, p := range agent.Probes {
		var probe model.Entity
		if err := e.store.FindOne(ctx, mongo.CollEntities, bson.M{"uuid": p}, &probe); err != nil {
			continue
		}
		out[p] = collector.BootProbe{URL: probe.URL, Type: model.ProbeType(probe.Type), ClusterUUID: probe.ClusterUUID}
	}
	return out, nil
}

// HandleRegistration upserts the probe entity, appends it to the owning
// agent, and upserts the cluster or edge-device record, per spec.md
// §4.5.
func (e *Engine) HandleRegistration(ctx context.Context, ev event.Event) error {
	entity := model.Entity{
		UUID:        ev.ProbeUUID,
		Type:        model.EntityType(ev.ProbeType),
		ClusterUUID: ev.ClusterUUID,
		URL:         ev.URL,
		LastRefresh: time.Now(),
	}
	if err := e.store.Upsert(ctx, mongo.CollEntities, bson.M{"uuid": ev.ProbeUUID}, toBSON(entity)); err != nil {
		return err
	}

	if err := e.appendProbeToAgent(ctx, ev.ProbeUUID); err != nil {
		return err
	}

	switch ev.ProbeType {
	case model.ProbeTypeEdgeStorage:
		return e.store.Upsert(ctx, mongo.CollEdgeStorage,
			bson.M{"cluster_uuid": ev.ClusterUUID},
			toBSON(model.EdgeStorageDevice{ClusterUUID: ev.ClusterUUID}))
	default:
		kind := model.KindForProbeType(ev.ProbeType)
		return e.store.Upsert(ctx, mongo.CollClusters,
			bson.M{"uuid": ev.ClusterUUID},
			toBSON(model.Cluster{UUID: ev.ClusterUUID, Type: kind, Timestamp: time.Now()}))
	}
}

func (e *Engine) appendProbeToAgent(ctx context.Context, probeUUID string) error {
	_, err := e.store.Collection(mongo.CollEntities).UpdateOne(ctx,
		bson.M{"uuid": e.agentUUID, "type": model.EntityTypeAgent},
		bson.M{"$addToSet": bson.M{"probes": probeUUID}},
		options.Update().SetUpsert(true),
	)
	return err
}

// HandleDeregistration deletes cluster/edge-storage rows and their
// metrics (cascade by cluster_uuid), removes the probe from the agent,
// and deletes the probe entity, per spec.md §4.5 / invariant 4.
func (e *Engine) HandleDeregistration(ctx context.Context, ev event.Event) error {
	switch ev.ProbeType {
	case model.ProbeTypeEdgeStorage:
		if err := e.store.DeleteMany(ctx, mongo.CollEdgeStorage, bson.M{"cluster_uuid": ev.ClusterUUID}); err != nil {
			return err
		}
		if err := e.store.DeleteMany(ctx, mongo.CollEdgeStorageMetrics, bson.M{"cluster_uuid": ev.ClusterUUID}); err != nil {
			return err
		}
	default:
		if err := e.store.DeleteMany(ctx, mongo.CollClusters, bson.M{"uuid": ev.ClusterUUID}); err != nil {
			return err
		}
		if err := e.store.DeleteMany(ctx, mongo.CollClusterStateMetrics, bson.M{"cluster_uuid": ev.ClusterUUID}); err != nil {
			return err
		}
	}

	if _, err := e.store.Collection(mongo.CollEntities).UpdateOne(ctx,
		bson.M{"uuid": e.agentUUID, "type": model.EntityTypeAgent},
		bson.M{"$pull": bson.M{"probes": ev.ProbeUUID}},
	); err != nil {
		return err
	}

	return e.store.DeleteMany(ctx, mongo.CollEntities, bson.M{"uuid": ev.ProbeUUID})
}

// HandleInventory mirrors a probe's inventory push into the cluster
// record.
func (e *Engine) HandleInventory(ctx context.Context, ev event.Event) error {
	if ev.Inventory == nil {
		return fmt.Errorf("inventory event missing payload")
	}
	if ev.ProbeType == model.ProbeTypeEdgeStorage {
		if ev.Inventory.EdgeStorageData == nil {
			return nil
		}
		for _, d := range ev.Inventory.EdgeStorageData.Devices {
			d.ClusterUUID = ev.ClusterUUID
			if err := e.store.Upsert(ctx, mongo.CollEdgeStorage,
				bson.M{"name": d.Name, "cluster_uuid": d.ClusterUUID}, toBSON(d)); err != nil {
				e.logger.Error("edge device upsert failed", zap.Error(err))
			}
		}
		return nil
	}

	var payload any
	switch ev.ProbeType {
	case model.ProbeTypeK8s:
		payload = ev.Inventory.K8sInventoryData
	case model.ProbeTypeHPC:
		payload = ev.Inventory.HPCInventoryData
	}
	kind := model.KindForProbeType(ev.ProbeType)
	return e.store.Upsert(ctx, mongo.CollClusters, bson.M{"uuid": ev.ClusterUUID},
		toBSON(model.Cluster{UUID: ev.ClusterUUID, Type: kind, Inventory: payload, Timestamp: time.Now()}))
}

// HandleMonitor and HandleProbeMonitorResult share the same write path;
// HandleMonitor services the pull-through HTTP endpoint (C2), while
// HandleProbeMonitorResult services the poll loop (C4).
func (e *Engine) HandleMonitor(ctx context.Context, ev event.Event) error {
	if ev.Monitor == nil {
		return fmt.Errorf("monitor event missing payload")
	}
	return e.writeMonitorSample(ctx, ev.ProbeUUID, ev.ClusterUUID, ev.ProbeType, ev.Monitor)
}

func (e *Engine) HandleProbeMonitorResult(ctx context.Context, probeUUID, clusterUUID string, pt model.ProbeType, envelope *model.MonitorEnvelope) error {
	return e.writeMonitorSample(ctx, probeUUID, clusterUUID, pt, envelope)
}

func (e *Engine) writeMonitorSample(ctx context.Context, probeUUID, clusterUUID string, pt model.ProbeType, envelope *model.MonitorEnvelope) error {
	now := time.Now()

	if pt == model.ProbeTypeEdgeStorage {
		if err := e.store.PurgeOlderThan(ctx, mongo.CollEdgeStorageMetrics, e.retention, bson.M{"cluster_uuid": clusterUUID}); err != nil {
			e.logger.Error("edge storage metrics purge failed", zap.Error(err))
		}
		docs := make([]any, 0, len(envelope.EdgeStorageData))
		for _, d := range envelope.EdgeStorageData {
			docs = append(docs, model.EdgeStorageMetric{ClusterUUID: clusterUUID, Name: d.Name, Timestamp: now, Fields: d.Fields})
			if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindEdgeStorage, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: d}); err != nil {
				e.logger.Error("pmds edge storage write failed", zap.Error(err))
			}
		}
		return e.store.InsertMany(ctx, mongo.CollEdgeStorageMetrics, docs)
	}

	if err := e.store.PurgeOlderThan(ctx, mongo.CollClusterStateMetrics, e.retention, bson.M{"cluster_uuid": clusterUUID}); err != nil {
		e.logger.Error("cluster metrics purge failed", zap.Error(err))
	}
	if err := e.store.InsertOne(ctx, mongo.CollClusterStateMetrics, model.ClusterMetric{ClusterUUID: clusterUUID, Timestamp: now, State: envelope}); err != nil {
		e.logger.Error("cluster metrics insert failed", zap.Error(err))
	}

	switch pt {
	case model.ProbeTypeK8s:
		if envelope.K8sMonitoringData != nil {
			e.emitK8sSamples(ctx, probeUUID, clusterUUID, now, envelope.K8sMonitoringData)
			e.projectDeploymentOverlay(ctx, probeUUID, clusterUUID, now, envelope.K8sMonitoringData.Pods)
		}
	case model.ProbeTypeHPC:
		if envelope.HPCMonitoringData != nil {
			for _, part := range envelope.HPCMonitoringData.Partitions {
				if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindHPCPartitions, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: part}); err != nil {
					e.logger.Error("pmds hpc write failed", zap.Error(err))
				}
			}
		}
	}
	return nil
}

func (e *Engine) emitK8sSamples(ctx context.Context, probeUUID, clusterUUID string, now time.Time, data *model.K8sMonitoring) {
	for _, n := range data.Nodes {
		if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindNodes, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: n}); err != nil {
			e.logger.Error("pmds node write failed", zap.Error(err))
		}
	}
	for _, pv := range data.PersistentVolumes {
		if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindPersistentVolumes, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: pv}); err != nil {
			e.logger.Error("pmds pv write failed", zap.Error(err))
		}
	}
	for _, d := range data.Deployments {
		if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindDeployments, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: d}); err != nil {
			e.logger.Error("pmds deployment write failed", zap.Error(err))
		}
	}
	for _, p := range data.Pods {
		if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindPods, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: p}); err != nil {
			e.logger.Error("pmds pod write failed", zap.Error(err))
		}
	}
}

// projectDeploymentOverlay implements spec.md §4.5's pod-projection
// step: keep only pods whose serrano_deployment_uuid is a key in the
// overlay, rename the key, stamp cluster_uuid/timestamp, bulk-insert
// into cluster_deployment_metrics, and emit a DeploymentMonitoring
// sample to C6 if any pods matched (invariant 2).
func (e *Engine) projectDeploymentOverlay(ctx context.Context, probeUUID, clusterUUID string, now time.Time, pods []model.PodSample) {
	e.overlayMu.RLock()
	defer e.overlayMu.RUnlock()

	var matched []any
	for _, p := range pods {
		if p.SerranoDeploymentUUID == "" {
			continue
		}
		if _, ok := e.overlay[p.SerranoDeploymentUUID]; !ok {
			continue
		}
		matched = append(matched, bson.M{
			"cluster_uuid":    clusterUUID,
			"timestamp":       now,
			"deployment_uuid": p.SerranoDeploymentUUID,
			"name":            p.Name,
			"namespace":       p.Namespace,
			"node":            p.Node,
			"phase":           p.Phase,
			"restarts":        p.Restarts,
			"cpu_usage":       p.CPUUsage,
			"memory_usage":    p.MemoryUsage,
			"group_id":        p.GroupID,
		})

		overlaySample := model.DeploymentOverlaySample{
			ClusterUUID: clusterUUID, Node: p.Node, Name: p.Name,
			DeploymentUUID: p.SerranoDeploymentUUID, GroupID: p.GroupID, Namespace: p.Namespace,
			Phase: p.Phase, Restarts: p.Restarts, CPUUsageRaw: p.CPUUsage, MemoryUsageRaw: p.MemoryUsage,
		}
		if err := e.pmds.Write(ctx, model.Sample{Kind: model.SampleKindDeploymentOverlay, ProbeUUID: probeUUID, ClusterUUID: clusterUUID, Timestamp: now, Payload: overlaySample}); err != nil {
			e.logger.Error("pmds deployment overlay write failed", zap.Error(err))
		}
	}
	if len(matched) == 0 {
		return
	}
	if err := e.store.PurgeOlderThan(ctx, mongo.CollClusterDeploymentMetrics, e.retention, bson.M{"cluster_uuid": clusterUUID}); err != nil {
		e.logger.Error("cluster deployment metrics purge failed", zap.Error(err))
	}
	if err := e.store.InsertMany(ctx, mongo.CollClusterDeploymentMetrics, matched); err != nil {
		e.logger.Error("cluster deployment metrics insert failed", zap.Error(err))
	}
}

// HandleDeploymentPost sets overlay[deployment_uuid] = k8s_deployments,
// thread-safe under a single lock (spec.md §4.5).
func (e *Engine) HandleDeploymentPost(ctx context.Context, ev event.Event) error {
	e.overlayMu.Lock()
	e.overlay[ev.DeploymentUUID] = model.DeploymentSelectors{DeploymentUUID: ev.DeploymentUUID, Selectors: ev.K8sDeployments}
	e.overlayMu.Unlock()
	return nil
}

// HandleDeploymentDelete removes the key from the overlay.
func (e *Engine) HandleDeploymentDelete(ctx context.Context, ev event.Event) error {
	e.overlayMu.Lock()
	delete(e.overlay, ev.DeploymentUUID)
	e.overlayMu.Unlock()
	return nil
}

// HandleDeploymentSpecificMetrics purges then inserts the single
// record and forwards it to C6, per spec.md §4.5.
func (e *Engine) HandleDeploymentSpecificMetrics(ctx context.Context, ev event.Event) error {
	if err := e.store.PurgeOlderThan(ctx, mongo.CollDeploymentsSpecificMetrics, e.retention, bson.M{"deployment_uuid": ev.DeploymentUUID}); err != nil {
		e.logger.Error("deployment specific metrics purge failed", zap.Error(err))
	}
	now := time.Now()
	doc := bson.M{
		"deployment_uuid": ev.DeploymentUUID,
		"service_id":      ev.ServiceID,
		"metrics":         ev.Metrics,
		"timestamp":       now,
	}
	if err := e.store.InsertOne(ctx, mongo.CollDeploymentsSpecificMetrics, doc); err != nil {
		return err
	}
	return e.pmds.Write(ctx, model.Sample{
		Kind:      model.SampleKindDeploymentSpecificMetrics,
		Timestamp: now,
		Payload: model.DeploymentSpecificMetricsSample{
			DeploymentUUID: ev.DeploymentUUID,
			ServiceID:      ev.ServiceID,
			Metrics:        ev.Metrics,
		},
	})
}

func toBSON(v any) bson.M {
	data, _ := bson.Marshal(v)
	var m bson.M
	_ = bson.Unmarshal(data, &m)
	return m
}
