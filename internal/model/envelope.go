package model

import "time"

// PingResponse is the uniform probe liveness payload.
type PingResponse struct {
	UUID  string    `json:"uuid"`
	Type  ProbeType `json:"type"`
	Alive bool      `json:"alive"`
}

// InventoryEnvelope is the uniform wrapper returned by GET inventory.
// Exactly one of the type-specific fields is populated, matching the
// probe's ProbeType.
type InventoryEnvelope struct {
	UUID             string            `json:"uuid"`
	Type             ProbeType         `json:"type"`
	K8sInventoryData *K8sInventory     `json:"k8s_inventory_data,omitempty"`
	HPCInventoryData *HPCInventory     `json:"hpc_inventory_data,omitempty"`
	EdgeStorageData  *EdgeStorageInventory `json:"edge_storage_inventory_data,omitempty"`
}

// MonitorEnvelope is the uniform wrapper returned by GET monitor.
type MonitorEnvelope struct {
	UUID                string             `json:"uuid"`
	Type                ProbeType          `json:"type"`
	K8sMonitoringData   *K8sMonitoring     `json:"k8s_monitoring_data,omitempty"`
	HPCMonitoringData   *HPCMonitoring     `json:"hpc_monitoring_data,omitempty"`
	EdgeStorageData     []EdgeStorageMonitoring `json:"edge_storage_devices,omitempty"`
}

// --- Kubernetes ---

type NodeInfo struct {
	Name           string            `json:"name" bson:"name"`
	Labels         map[string]string `json:"labels" bson:"labels"`
	Vaccel         bool              `json:"vaccel" bson:"vaccel"`
	SecurityTier   int               `json:"security_tier" bson:"security_tier"`
	TotalCPU       string            `json:"total_cpu" bson:"total_cpu"`
	TotalMemory    string            `json:"total_memory" bson:"total_memory"`
	TotalGPU       int64             `json:"total_gpu" bson:"total_gpu"`
	TotalFPGA      int64             `json:"total_fpga" bson:"total_fpga"`
}

type ServiceInfo struct {
	Name      string            `json:"name" bson:"name"`
	Namespace string            `json:"namespace" bson:"namespace"`
	Type      string            `json:"type" bson:"type"`
	Ports     []int32           `json:"ports" bson:"ports"`
	Selector  map[string]string `json:"selector" bson:"selector"`
}

type PersistentVolumeInfo struct {
	Name            string `json:"name" bson:"name"`
	CapacityStorage string `json:"capacity_storage" bson:"capacity_storage"`
}

type DeploymentInfo struct {
	Name      string `json:"name" bson:"name"`
	Namespace string `json:"namespace" bson:"namespace"`
	Replicas  int32  `json:"replicas" bson:"replicas"`
}

// K8sInventory is the static description of one cluster.
type K8sInventory struct {
	Nodes       []NodeInfo             `json:"nodes" bson:"nodes"`
	Services    []ServiceInfo          `json:"services" bson:"services"`
	Deployments []DeploymentInfo       `json:"deployments" bson:"deployments"`
	Volumes     []PersistentVolumeInfo `json:"persistent_volumes" bson:"persistent_volumes"`
}

// NodeMetricsGeneral/CPU/Memory/Storage/Network hold the per-group field
// sets from spec.md §4.6's node-metrics table.
type NodeMetricsGeneral struct {
	NodeBootTimeSeconds   float64 `json:"node_boot_time_seconds"`
	NodeTotalRunningPods  int     `json:"node_total_running_pods"`
}

type NodeMetricsCPU struct {
	NodeCPUs int       `json:"node_cpus"`
	Idle     []float64 `json:"cpu_idle"`
	Used     []float64 `json:"cpu_used"`
}

type NodeMetricsMemory struct {
	MemoryTotalBytes float64 `json:"node_memory_total_bytes"`
	MemoryFreeBytes  float64 `json:"node_memory_free_bytes"`
	MemoryUsedBytes  float64 `json:"node_memory_used_bytes"`
}

type NodeMetricsStorage struct {
	FilesystemSizeBytes float64 `json:"node_filesystem_size_bytes"`
	FilesystemFreeBytes float64 `json:"node_filesystem_free_bytes"`
}

type NodeMetricsNetwork struct {
	ReceiveBytesTotal  float64 `json:"node_network_receive_bytes_total"`
	TransmitBytesTotal float64 `json:"node_network_transmit_bytes_total"`
}

type NodeMetrics struct {
	NodeName string             `json:"node_name"`
	General  NodeMetricsGeneral `json:"general"`
	CPU      NodeMetricsCPU     `json:"cpu"`
	Memory   NodeMetricsMemory  `json:"memory"`
	Storage  NodeMetricsStorage `json:"storage"`
	Network  NodeMetricsNetwork `json:"network"`
}

// PodSample is one pod's monitoring row, carrying the join keys used by
// the deployment overlay projection (spec.md §4.5).
type PodSample struct {
	Name                string            `json:"name" bson:"name"`
	Namespace           string            `json:"namespace" bson:"namespace"`
	Node                string            `json:"node" bson:"node"`
	Phase               string            `json:"phase" bson:"phase"`
	CreationTimestamp   time.Time         `json:"creation_timestamp" bson:"creation_timestamp"`
	CPUUsage            string            `json:"cpu_usage" bson:"cpu_usage"`
	MemoryUsage         string            `json:"memory_usage" bson:"memory_usage"`
	Restarts            int32             `json:"restarts" bson:"restarts"`
	Labels              map[string]string `json:"labels" bson:"labels"`
	SerranoDeploymentUUID string          `json:"serrano_deployment_uuid" bson:"serrano_deployment_uuid"`
	GroupID             string            `json:"group_id" bson:"group_id"`
}

// DeploymentStatusSample is one deployment's monitoring row.
type DeploymentStatusSample struct {
	Name               string `json:"name" bson:"name"`
	Namespace          string `json:"namespace" bson:"namespace"`
	Replicas           int32  `json:"replicas" bson:"replicas"`
	ReadyReplicas      int32  `json:"ready_replicas" bson:"ready_replicas"`
	AvailableReplicas  int32  `json:"available_replicas" bson:"available_replicas"`
}

// K8sMonitoring is the full monitor-tick payload for one cluster.
type K8sMonitoring struct {
	Nodes              []NodeMetrics            `json:"nodes" bson:"nodes"`
	PersistentVolumes  []PersistentVolumeInfo   `json:"persistent_volumes" bson:"persistent_volumes"`
	Deployments        []DeploymentStatusSample `json:"deployments" bson:"deployments"`
	Pods               []PodSample              `json:"pods" bson:"pods"`
	Services           []ServiceInfo            `json:"services" bson:"services"`
}

// --- HPC ---

type HPCInventory struct {
	InfrastructureName string   `json:"infrastructure_name"`
	Partitions         []string `json:"partitions"`
}

type HPCPartitionSample struct {
	InfrastructureName string `json:"infrastructure_name"`
	PartitionName      string `json:"partition_name"`
	AvailCPUs          int    `json:"avail_cpus"`
	AvailNodes         int    `json:"avail_nodes"`
	QueuedJobs         int    `json:"queued_jobs"`
	RunningJobs        int    `json:"running_jobs"`
}

type HPCMonitoring struct {
	Partitions []HPCPartitionSample `json:"partitions"`
}

// --- Edge Storage ---

type EdgeStorageInventory struct {
	Devices []EdgeStorageDevice `json:"devices"`
}

type EdgeStorageMonitoring struct {
	Name        string      `json:"name"`
	ClusterUUID string      `json:"cluster_uuid"`
	Node        string      `json:"node"`
	Fields      MinioFields `json:"fields"`
}
