// Package dataengine implements the Central Data Engine (C9): the
// CTH-side mirror of cluster/entity/deployment/kernel/metric
// collections (spec.md §4.9), grounded on
// _examples/original_source/Central_Telemetry_Handler/dataEngine.py.
package dataengine

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
	"github.com/ict-serrano/telemetry-fabric/internal/store/mongo"
)

type Engine struct {
	store  *mongo.Store
	logger *zap.Logger
}

func New(store *mongo.Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// RegisteredAgent is the resolved cluster -> owning-agent mapping used
// by C8's live proxy endpoints.
type RegisteredAgent struct {
	AgentURL    string
	ClusterUUID string
}

// GetRegisteredAgents derives the cluster->agent map by, for each
// type=Agent entity, iterating its probes and joining each probe to
// its cluster_uuid, per spec.md §4.9.
func (e *Engine) GetRegisteredAgents(ctx context.Context) (map[string]RegisteredAgent, error) {
	cur, err := e.store.Collection(mongo.CollEntities).Find(ctx, bson.M{"type": model.EntityTypeAgent})
	if err != nil {
		return nil, fmt.Errorf("list agent entities: %w", err)
	}
	defer cur.Close(ctx)

	out := make(map[string]RegisteredAgent)
	for cur.Next(ctx) {
		var agent model.Entity
		if err := cur.Decode(&agent); err != nil {
			e.logger.Warn("skip malformed agent entity", zap.Error(err))
			continue
		}
		for _, probeUUID := range agent.Probes {
			var probe model.Entity
			if err := e.store.FindOne(ctx, mongo.CollEntities, bson.M{"uuid": probeUUID}, &probe); err != nil {
				continue
			}
			if probe.ClusterUUID == "" {
				continue
			}
			out[probe.ClusterUUID] = RegisteredAgent{AgentURL: agent.URL, ClusterUUID: probe.ClusterUUID}
		}
	}
	return out, nil
}

// GetInfrastructure returns every cluster record (spec.md §4.8). It takes
// no kernels filter; the HTTP handler applies ?kernels= itself.
func (e *Engine) GetInfrastructure(ctx context.Context) ([]model.Cluster, error) {
	cur, err := e.store.Collection(mongo.CollClusters).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Cluster
	for cur.Next(ctx) {
		var c model.Cluster
		if err := cur.Decode(&c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) GetCluster(ctx context.Context, clusterUUID string) (*model.Cluster, error) {
	var c model.Cluster
	if err := e.store.FindOne(ctx, mongo.CollClusters, bson.M{"uuid": clusterUUID}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Engine) GetClusterMetrics(ctx context.Context, clusterUUID string, all bool) ([]model.ClusterMetric, error) {
	filter := bson.M{"cluster_uuid": clusterUUID}
	opts := options.Find().SetSort(bson.M{"timestamp": -1})
	if !all {
		opts = opts.SetLimit(1)
	}
	cur, err := e.store.Collection(mongo.CollClusterStateMetrics).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.ClusterMetric
	for cur.Next(ctx) {
		var m model.ClusterMetric
		if err := cur.Decode(&m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetStorageLocations joins edge_storage with the latest
// edge_storage_metrics row per name, per spec.md §4.8; the cloud branch
// returns the current mirrored cloud_storage_locations list.
func (e *Engine) GetStorageLocations(ctx context.Context, target string) (any, error) {
	if target == "cloud" {
		cur, err := e.store.Collection(mongo.CollCloudStorageLocations).Find(ctx, bson.M{})
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)
		var out []model.CloudStorageLocation
		for cur.Next(ctx) {
			var l model.CloudStorageLocation
			if err := cur.Decode(&l); err != nil {
				continue
			}
			out = append(out, l)
		}
		return out, nil
	}

	cur, err := e.store.Collection(mongo.CollEdgeStorage).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	type joined struct {
		model.EdgeStorageDevice `bson:",inline"`
		LatestMetric            *model.EdgeStorageMetric `json:"latest_metric,omitempty"`
		ID                      int                      `json:"id"`
	}
	var out []joined
	for cur.Next(ctx) {
		var d model.EdgeStorageDevice
		if err := cur.Decode(&d); err != nil {
			continue
		}
		var latest model.EdgeStorageMetric
		opts := options.FindOne().SetSort(bson.M{"timestamp": -1})
		err := e.store.Collection(mongo.CollEdgeStorageMetrics).FindOne(ctx, bson.M{"name": d.Name}, opts).Decode(&latest)

		id := -1 // edge-gateway id resolution is an external lookup not modeled here
		row := joined{EdgeStorageDevice: d, ID: id}
		if err == nil {
			row.LatestMetric = &latest
		}
		out = append(out, row)
	}
	return out, nil
}

// RefreshCloudStorageLocations truncates and atomically rewrites the
// cloud_storage_locations mirror, per spec.md §4.9.
func (e *Engine) RefreshCloudStorageLocations(ctx context.Context, locations []model.CloudStorageLocation) error {
	if err := e.store.DeleteMany(ctx, mongo.CollCloudStorageLocations, bson.M{}); err != nil {
		return err
	}
	docs := make([]any, 0, len(locations))
	for _, l := range locations {
		docs = append(docs, l)
	}
	return e.store.InsertMany(ctx, mongo.CollCloudStorageLocations, docs)
}

// UpsertDeployment deletes any existing document with the same
// deployment_uuid before inserting, per spec.md §4.9; the engine is the
// only writer for this collection.
func (e *Engine) UpsertDeployment(ctx context.Context, d model.Deployment) error {
	if err := e.store.DeleteMany(ctx, mongo.CollSerranoDeployments, bson.M{"deployment_uuid": d.DeploymentUUID}); err != nil {
		return err
	}
	return e.store.InsertOne(ctx, mongo.CollSerranoDeployments, d)
}

func (e *Engine) DeleteDeployment(ctx context.Context, deploymentUUID string) error {
	return e.store.DeleteMany(ctx, mongo.CollSerranoDeployments, bson.M{"deployment_uuid": deploymentUUID})
}

func (e *Engine) GetDeployment(ctx context.Context, deploymentUUID string) (*model.Deployment, error) {
	var d model.Deployment
	if err := e.store.FindOne(ctx, mongo.CollSerranoDeployments, bson.M{"deployment_uuid": deploymentUUID}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (e *Engine) ListDeployments(ctx context.Context) ([]model.Deployment, error) {
	cur, err := e.store.Collection(mongo.CollSerranoDeployments).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Deployment
	for cur.Next(ctx) {
		var d model.Deployment
		if err := cur.Decode(&d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// GetPerClusterDeployments flattens ListDeployments into one row per
// (deployment_uuid, cluster_uuid), the supplemented
// /central/cluster_deployments view (SPEC_FULL.md §4.11).
func (e *Engine) GetPerClusterDeployments(ctx context.Context) ([]bson.M, error) {
	deployments, err := e.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}
	var out []bson.M
	for _, d := range deployments {
		for clusterUUID, sel := range d.PerCluster {
			out = append(out, bson.M{
				"deployment_uuid": d.DeploymentUUID,
				"cluster_uuid":    clusterUUID,
				"labels":          sel.Labels,
			})
		}
	}
	return out, nil
}

// UpdateKernelDeployments applies counterDiff atomically on
// (cluster_uuid, deployment_mode, kernel_mode), never letting the
// counter go negative, per spec.md §4.8 / invariant 5.
func (e *Engine) UpdateKernelDeployments(ctx context.Context, clusterUUID, deploymentMode, kernelMode string, counterDiff int) error {
	var doc model.SerranoKernelDeployments
	err := e.store.FindOne(ctx, mongo.CollSerranoKernelDeployments,
		bson.M{"cluster_uuid": clusterUUID, "deployment_mode": deploymentMode}, &doc)
	if err != nil && !mongo.IsNoDocuments(err) {
		return err
	}
	if doc.Counters == nil {
		doc.Counters = map[string]int{}
	}
	current := doc.Counters[kernelMode]
	if counterDiff < 0 && current == 0 {
		return nil
	}
	if current+counterDiff < 0 {
		counterDiff = -current
	}
	_, err = e.store.Collection(mongo.CollSerranoKernelDeployments).UpdateOne(ctx,
		bson.M{"cluster_uuid": clusterUUID, "deployment_mode": deploymentMode},
		bson.M{"$inc": bson.M{"counters." + kernelMode: counterDiff}},
		options.Update().SetUpsert(true))
	return err
}

func (e *Engine) ListKernelDeployments(ctx context.Context) ([]model.SerranoKernelDeployments, error) {
	cur, err := e.store.Collection(mongo.CollSerranoKernelDeployments).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.SerranoKernelDeployments
	for cur.Next(ctx) {
		var d model.SerranoKernelDeployments
		if err := cur.Decode(&d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// AddKernelMetrics bulk-inserts a logs array, the supplemented
// /central/kernel_metrics endpoint (SPEC_FULL.md §4.11).
func (e *Engine) AddKernelMetrics(ctx context.Context, logs []map[string]any) error {
	docs := make([]any, 0, len(logs))
	now := time.Now()
	for _, l := range logs {
		l["timestamp"] = now
		docs = append(docs, l)
	}
	return e.store.InsertMany(ctx, mongo.CollSerranoKernelMetrics, docs)
}

func (e *Engine) GetDeploymentSpecificMetrics(ctx context.Context, deploymentUUID string) ([]bson.M, error) {
	cur, err := e.store.Collection(mongo.CollDeploymentsSpecificMetrics).Find(ctx, bson.M{"deployment_uuid": deploymentUUID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []bson.M
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (e *Engine) GetDeploymentMetrics(ctx context.Context, deploymentUUID string) ([]bson.M, error) {
	cur, err := e.store.Collection(mongo.CollClusterDeploymentMetrics).Find(ctx, bson.M{"deployment_uuid": deploymentUUID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []bson.M
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func toBSON(v any) bson.M {
	data, _ := bson.Marshal(v)
	var m bson.M
	_ = bson.Unmarshal(data, &m)
	return m
}
