// Package writer implements the PMDS Writer (C6): typed, tag-structured
// points written to the time-series store, with lazy per-bucket
// creation, per spec.md §4.6. Grounded on
// _examples/original_source/Enhanced_Telemetry_Agent/pmdsInterface.py
// for the exact schema/unit-conversion rules.
package writer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
	"github.com/ict-serrano/telemetry-fabric/internal/store/influx"
)

// Writer implements the dataengine.PMDSWriter interface.
type Writer struct {
	store  *influx.Store
	logger *zap.Logger
}

func New(store *influx.Store, logger *zap.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Write dispatches s by Kind to the schema table in spec.md §4.6.
func (w *Writer) Write(ctx context.Context, s model.Sample) error {
	switch s.Kind {
	case model.SampleKindNodes:
		return w.writeNode(ctx, s)
	case model.SampleKindPersistentVolumes:
		pv := s.Payload.(model.PersistentVolumeInfo)
		return w.point(ctx, s.ProbeUUID, "persistentVolumes",
			map[string]string{"name": pv.Name},
			map[string]any{"capacity_storage": pv.CapacityStorage}, s.Timestamp)
	case model.SampleKindPods:
		p := s.Payload.(model.PodSample)
		return w.point(ctx, s.ProbeUUID, "pods",
			map[string]string{
				"name": p.Name, "namespace": p.Namespace, "node": p.Node,
				"phase": p.Phase, "creation_timestamp": p.CreationTimestamp.String(),
			},
			map[string]any{"cpu_usage": p.CPUUsage, "memory_usage": p.MemoryUsage, "restarts": p.Restarts},
			s.Timestamp)
	case model.SampleKindDeployments:
		d := s.Payload.(model.DeploymentStatusSample)
		return w.point(ctx, s.ProbeUUID, "deployments",
			map[string]string{"name": d.Name, "namespace": d.Namespace},
			map[string]any{"replicas": d.Replicas, "ready_replicas": d.ReadyReplicas, "available_replicas": d.AvailableReplicas},
			s.Timestamp)
	case model.SampleKindHPCPartitions:
		p := s.Payload.(model.HPCPartitionSample)
		return w.point(ctx, s.ProbeUUID, "hpc_partitions",
			map[string]string{"infrastructure_name": p.InfrastructureName, "partition_name": p.PartitionName},
			map[string]any{"avail_cpus": p.AvailCPUs, "avail_nodes": p.AvailNodes, "queued_jobs": p.QueuedJobs, "running_jobs": p.RunningJobs},
			s.Timestamp)
	case model.SampleKindEdgeStorage:
		d := s.Payload.(model.EdgeStorageMonitoring)
		return w.point(ctx, s.ProbeUUID, "edge_storage",
			map[string]string{"cluster_uuid": d.ClusterUUID, "node": d.Node, "name": d.Name},
			map[string]any{
				"minio_bucket_usage_total_bytes": d.Fields.BucketUsageTotalBytes,
				"minio_node_disk_free_bytes":     d.Fields.NodeDiskFreeBytes,
				"minio_node_disk_total_bytes":    d.Fields.NodeDiskTotalBytes,
				"minio_s3_requests_total":        d.Fields.S3RequestsTotal,
				"minio_s3_requests_errors_total": d.Fields.S3RequestsErrorsTotal,
				"minio_s3_traffic_sent_bytes":    d.Fields.S3TrafficSentBytes,
			}, s.Timestamp)
	case model.SampleKindDeploymentOverlay:
		return w.writeDeploymentOverlay(ctx, s)
	case model.SampleKindDeploymentSpecificMetrics:
		d := s.Payload.(model.DeploymentSpecificMetricsSample)
		fields := map[string]any{}
		for k, v := range d.Metrics {
			fields[k] = v
		}
		return w.point(ctx, "", "serrano_deployments_specific_metrics",
			map[string]string{"cluster_uuid": d.ClusterUUID, "deployment_uuid": d.DeploymentUUID, "service_id": d.ServiceID},
			fields, s.Timestamp, influx.BucketDeploymentsSpecificMetrics)
	default:
		return fmt.Errorf("unknown sample kind %q", s.Kind)
	}
}

func (w *Writer) writeNode(ctx context.Context, s model.Sample) error {
	n := s.Payload.(model.NodeMetrics)

	if err := w.point(ctx, s.ProbeUUID, "nodes",
		map[string]string{"node_name": n.NodeName, "group": "general"},
		map[string]any{
			"node_boot_time_seconds":  n.General.NodeBootTimeSeconds,
			"node_total_running_pods": n.General.NodeTotalRunningPods,
		}, s.Timestamp); err != nil {
		return err
	}

	cpuFields := map[string]any{}
	for i := range n.CPU.Idle {
		cpuFields[fmt.Sprintf("cpu_%d_idle", i)] = n.CPU.Idle[i]
		cpuFields[fmt.Sprintf("cpu_%d_used", i)] = n.CPU.Used[i]
	}
	if err := w.point(ctx, s.ProbeUUID, "nodes",
		map[string]string{"node_name": n.NodeName, "group": "cpu", "node_cpus": fmt.Sprint(n.CPU.NodeCPUs)},
		cpuFields, s.Timestamp); err != nil {
		return err
	}

	if err := w.point(ctx, s.ProbeUUID, "nodes",
		map[string]string{"node_name": n.NodeName, "group": "memory"},
		map[string]any{
			"node_memory_total_bytes": n.Memory.MemoryTotalBytes,
			"node_memory_free_bytes":  n.Memory.MemoryFreeBytes,
			"node_memory_used_bytes":  n.Memory.MemoryUsedBytes,
		}, s.Timestamp); err != nil {
		return err
	}

	if err := w.point(ctx, s.ProbeUUID, "nodes",
		map[string]string{"node_name": n.NodeName, "group": "storage"},
		map[string]any{
			"node_filesystem_size_bytes": n.Storage.FilesystemSizeBytes,
			"node_filesystem_free_bytes": n.Storage.FilesystemFreeBytes,
		}, s.Timestamp); err != nil {
		return err
	}

	return w.point(ctx, s.ProbeUUID, "nodes",
		map[string]string{"node_name": n.NodeName, "group": "network"},
		map[string]any{
			"node_network_receive_bytes_total":  n.Network.ReceiveBytesTotal,
			"node_network_transmit_bytes_total": n.Network.TransmitBytesTotal,
		}, s.Timestamp)
}

// writeDeploymentOverlay writes both the "primary" record (raw string
// fields) and the "dashboards" record (unit-converted fields) named in
// spec.md §4.6's schema table, both into the serrano_deployments
// measurement: the primary record into the fixed
// SERRANO_Deployments_Metrics bucket, the dashboards record into
// SERRANO_Deployments.
func (w *Writer) writeDeploymentOverlay(ctx context.Context, s model.Sample) error {
	d := s.Payload.(model.DeploymentOverlaySample)

	primaryTags := map[string]string{
		"cluster_uuid": d.ClusterUUID, "node": d.Node, "name": d.Name,
		"deployment_uuid": d.DeploymentUUID, "group_id": d.GroupID, "namespace": d.Namespace,
	}
	if err := w.point(ctx, "", "serrano_deployments", primaryTags,
		map[string]any{
			"phase": d.Phase, "restarts": d.Restarts,
			"cpu_usage": d.CPUUsageRaw, "memory_usage": d.MemoryUsageRaw,
		}, s.Timestamp, influx.BucketDeploymentsMetrics); err != nil {
		return err
	}

	dashboardTags := map[string]string{
		"cluster_uuid": d.ClusterUUID, "node": d.Node, "name": d.Name,
		"deployment_uuid": d.DeploymentUUID, "group_id": d.GroupID,
	}
	cpuM, _ := model.CPUMillicores(d.CPUUsageRaw)
	memMB, _ := model.MemoryMB(d.MemoryUsageRaw)
	return w.point(ctx, "", "serrano_deployments", dashboardTags,
		map[string]any{
			"restarts":        int(d.Restarts),
			"cpu_usage_m":     cpuM,
			"memory_usage_mb": memMB,
		}, s.Timestamp, influx.BucketDeployments)
}

// point writes one point into bucket (probe-uuid bucket unless an
// override is supplied for the fixed SERRANO_* buckets).
func (w *Writer) point(ctx context.Context, probeUUID, measurement string, tags map[string]string, fields map[string]any, ts time.Time, bucketOverride ...string) error {
	bucket := probeUUID
	if len(bucketOverride) > 0 {
		bucket = bucketOverride[0]
	}
	if bucket == "" {
		return fmt.Errorf("pmds write with no bucket target for measurement %q", measurement)
	}
	return w.store.WritePoint(ctx, bucket, measurement, tags, fields, ts)
}
