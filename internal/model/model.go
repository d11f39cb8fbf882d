// Package model defines the shared data model for the telemetry fabric:
// entities, clusters, edge-storage devices, the deployment overlay, and
// the wire envelopes exchanged between probes, agents, and the central
// handler.
package model

import (
	"strings"
	"time"
)

// ProbeType discriminates the three probe backends. String values match
// the original source's stringly-typed dispatch ("Probe.k8s", "Probe.HPC",
// "Probe.EdgeStorage") so that entities written by older agents remain
// readable, while callers in Go code should switch on this type.
type ProbeType string

const (
	ProbeTypeK8s         ProbeType = "Probe.k8s"
	ProbeTypeHPC         ProbeType = "Probe.HPC"
	ProbeTypeEdgeStorage ProbeType = "Probe.EdgeStorage"
)

// ClusterKind is the coarse site kind derived from a ProbeType.
type ClusterKind string

const (
	ClusterKindK8s ClusterKind = "k8s"
	ClusterKindHPC ClusterKind = "HPC"
)

// KindForProbeType maps a probe type to the cluster kind it backs, per
// spec.md §4.5 ("type = k8s if the probe-type string contains Probe.k8s
// or Probe.K8s, else HPC").
func KindForProbeType(pt ProbeType) ClusterKind {
	s := string(pt)
	if strings.Contains(s, "Probe.k8s") || strings.Contains(s, "Probe.K8s") {
		return ClusterKindK8s
	}
	return ClusterKindHPC
}

// EntityType discriminates rows in the `entities` collection.
type EntityType string

const (
	EntityTypeAgent        EntityType = "Agent"
	EntityTypeProbeK8s     EntityType = "Probe.k8s"
	EntityTypeProbeHPC     EntityType = "Probe.HPC"
	EntityTypeEdgeStorage  EntityType = "Probe.EdgeStorage"
)

// Entity is the operational-store row for every Agent and Probe,
// per spec.md §3.
type Entity struct {
	UUID         string     `bson:"uuid" json:"uuid"`
	Type         EntityType `bson:"type" json:"type"`
	ClusterUUID  string     `bson:"cluster_uuid,omitempty" json:"cluster_uuid,omitempty"`
	URL          string     `bson:"url,omitempty" json:"url,omitempty"`
	Probes       []string   `bson:"probes,omitempty" json:"probes,omitempty"`
	LastRefresh  time.Time  `bson:"last_refresh,omitempty" json:"last_refresh,omitempty"`
}

// Cluster is the per-site mirror, created on first registration of a
// cluster-scoped probe and updated on every inventory push.
type Cluster struct {
	UUID      string      `bson:"uuid" json:"uuid"`
	Type      ClusterKind `bson:"type" json:"type"`
	Inventory any         `bson:"inventory" json:"inventory"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// EdgeStorageDevice is the operational-store row for one MinIO node,
// keyed by (name, cluster_uuid).
type EdgeStorageDevice struct {
	Name                    string   `bson:"name" json:"name"`
	ClusterUUID             string   `bson:"cluster_uuid" json:"cluster_uuid"`
	Node                    string   `bson:"node" json:"node"`
	Location                GeoPoint `bson:"location" json:"location"`
	MinioNodeDiskTotalBytes int64    `bson:"minio_node_disk_total_bytes" json:"minio_node_disk_total_bytes"`
}

// ClusterMetric is one time-ordered monitoring sample for a cluster.
type ClusterMetric struct {
	ClusterUUID string    `bson:"cluster_uuid" json:"cluster_uuid"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	State       any       `bson:"state" json:"state"`
}

// EdgeStorageMetric is one time-ordered MinIO sample for one device.
type EdgeStorageMetric struct {
	ClusterUUID string    `bson:"cluster_uuid" json:"cluster_uuid"`
	Name        string    `bson:"name" json:"name"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	Fields      MinioFields `bson:",inline" json:",inline"`
}

// MinioFields is the fixed six-counter set scraped from a MinIO
// Prometheus endpoint (spec.md §4.6).
type MinioFields struct {
	BucketUsageTotalBytes float64 `bson:"minio_bucket_usage_total_bytes" json:"minio_bucket_usage_total_bytes"`
	NodeDiskFreeBytes     float64 `bson:"minio_node_disk_free_bytes" json:"minio_node_disk_free_bytes"`
	NodeDiskTotalBytes    float64 `bson:"minio_node_disk_total_bytes" json:"minio_node_disk_total_bytes"`
	S3RequestsTotal       float64 `bson:"minio_s3_requests_total" json:"minio_s3_requests_total"`
	S3RequestsErrorsTotal float64 `bson:"minio_s3_requests_errors_total" json:"minio_s3_requests_errors_total"`
	S3TrafficSentBytes    float64 `bson:"minio_s3_traffic_sent_bytes" json:"minio_s3_traffic_sent_bytes"`
}

// ClusterSelector is the per-cluster pod-label selector subset of a
// Deployment, keyed by cluster_uuid (spec.md §9: "require the
// per-cluster selector to be stored as a keyed sub-document
// per_cluster[cluster_uuid]").
type ClusterSelector struct {
	Labels map[string]string `bson:"labels" json:"labels"`
}

// Deployment is the CTH-owned record for one user workload spanning one
// or more clusters.
type Deployment struct {
	DeploymentUUID string                     `bson:"deployment_uuid" json:"deployment_uuid"`
	Clusters       []string                   `bson:"clusters" json:"clusters"`
	PerCluster     map[string]ClusterSelector `bson:"per_cluster" json:"per_cluster"`
}

// DeploymentSelectors is what an agent's DeploymentsMonitoring overlay
// stores for one deployment_uuid: the raw k8s_deployments selector list
// the CTH forwarded, per spec.md §4.2's deployment/post event.
type DeploymentSelectors struct {
	DeploymentUUID string   `bson:"deployment_uuid" json:"deployment_uuid"`
	Selectors      []string `bson:"k8s_deployments" json:"k8s_deployments"`
}

// KernelDeploymentMode and KernelMode enumerate the axes of the
// SerranoKernelDeployments counters.
type KernelDeploymentMode string

const (
	KernelDeploymentFaaS       KernelDeploymentMode = "FaaS"
	KernelDeploymentStandalone KernelDeploymentMode = "Standalone"
)

// SerranoKernelDeployments is the per-(cluster_uuid, deployment_mode)
// counter document, with one integer field per kernel_mode key.
type SerranoKernelDeployments struct {
	ClusterUUID    string         `bson:"cluster_uuid" json:"cluster_uuid"`
	DeploymentMode string         `bson:"deployment_mode" json:"deployment_mode"`
	Counters       map[string]int `bson:"counters" json:"counters"`
}

// CloudStorageLocation mirrors one row of the periodically-refreshed
// cloud-gateway storage location list.
type CloudStorageLocation struct {
	ID     int      `bson:"id" json:"id"`
	Name   string   `bson:"name" json:"name"`
	Region string   `bson:"region" json:"region"`
	Geo    GeoPoint `bson:"location" json:"location"`
}
