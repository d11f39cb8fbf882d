package model

import (
	"fmt"
	"time"
)

// SampleKind discriminates the PMDS write path (spec.md §4.6's schema
// table); each kind maps to one bucket/measurement pair.
type SampleKind string

const (
	SampleKindNodes                     SampleKind = "nodes"
	SampleKindPersistentVolumes          SampleKind = "persistentVolumes"
	SampleKindPods                       SampleKind = "pods"
	SampleKindDeployments                SampleKind = "deployments"
	SampleKindHPCPartitions              SampleKind = "hpc_partitions"
	SampleKindEdgeStorage                SampleKind = "edge_storage"
	SampleKindDeploymentOverlay           SampleKind = "serrano_deployments"
	SampleKindDeploymentSpecificMetrics   SampleKind = "serrano_deployments_specific_metrics"
)

// Sample is the generic unit C5 hands to C6: a bucket target, a
// measurement kind, and the typed payload the writer switches on.
type Sample struct {
	Kind        SampleKind
	ProbeUUID   string // bucket for per-probe streams; "" for fixed buckets
	ClusterUUID string
	Timestamp   time.Time
	Payload     any
}

// DeploymentOverlaySample is the payload for SampleKindDeploymentOverlay:
// one pod that survived the DeploymentsMonitoring projection.
type DeploymentOverlaySample struct {
	ClusterUUID    string
	Node           string
	Name           string
	DeploymentUUID string
	GroupID        string
	Namespace      string
	Phase          string
	Restarts       int32
	CPUUsageRaw    string // e.g. "123456789n"
	MemoryUsageRaw string // e.g. "456789Ki"
}

// DeploymentSpecificMetricsSample is the payload for
// SampleKindDeploymentSpecificMetrics.
type DeploymentSpecificMetricsSample struct {
	ClusterUUID    string
	DeploymentUUID string
	ServiceID      string
	Metrics        map[string]any
}

// CPUMillicores converts a Kubernetes nanocore-suffixed usage string
// ("123000000n") to millicores, per spec.md §4.6.
func CPUMillicores(raw string) (float64, bool) {
	return parseSuffixed(raw, "n", 1.0/1e6)
}

// MemoryMB converts a Kubernetes Ki-suffixed usage string ("456789Ki")
// to megabytes, per spec.md §4.6.
func MemoryMB(raw string) (float64, bool) {
	return parseSuffixed(raw, "Ki", 0.001024)
}

func parseSuffixed(raw, suffix string, scale float64) (float64, bool) {
	if len(raw) <= len(suffix) || raw[len(raw)-len(suffix):] != suffix {
		return 0, false
	}
	numeric := raw[:len(raw)-len(suffix)]
	var value float64
	if _, err := fmt.Sscan(numeric, &value); err != nil {
		return 0, false
	}
	return value * scale, true
}
