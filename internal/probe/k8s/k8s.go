// Package k8s implements the Kubernetes probe backend (spec.md §4.1),
// grounded on the teacher's client-go wiring
// (_examples/hexabase-hexabase-ai/api/internal/repository/kubernetes/client.go)
// and the original source's exact field semantics
// (_examples/original_source/Probes/kubernetes/).
package k8s

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

const (
	labelControlPlane = "node-role.kubernetes.io/control-plane"
	labelMaster       = "node-role.kubernetes.io/master"
	labelVaccel       = "serrano.eu/vaccel"
	labelSecurityTier = "serrano.eu/security-tier"
	labelDeploymentUUID = "serrano_deployment_uuid"
	labelGroupID        = "group_id"
)

// Backend implements server.Backend for a single Kubernetes cluster.
type Backend struct {
	uuid        string
	clusterUUID string
	namespace   string
	clientset   kubernetes.Interface
	metrics     metricsv1beta1.Interface
	httpClient  *http.Client
	cfg         config.ProbeConfig
	logger      *zap.Logger
}

func New(uuid string, cfg config.ProbeConfig, namespace string, clientset kubernetes.Interface, metrics metricsv1beta1.Interface, logger *zap.Logger) *Backend {
	return &Backend{
		uuid:        uuid,
		clusterUUID: cfg.ClusterUUID,
		namespace:   namespace,
		clientset:   clientset,
		metrics:     metrics,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cfg:         cfg,
		logger:      logger,
	}
}

func (b *Backend) UUID() string           { return b.uuid }
func (b *Backend) Type() model.ProbeType  { return model.ProbeTypeK8s }

func isControlPlane(node corev1.Node) bool {
	_, master := node.Labels[labelMaster]
	_, cp := node.Labels[labelControlPlane]
	return master || cp
}

func workerNodes(nodes []corev1.Node) []corev1.Node {
	out := make([]corev1.Node, 0, len(nodes))
	for _, n := range nodes {
		if !isControlPlane(n) {
			out = append(out, n)
		}
	}
	return out
}

// sumVendorResource sums a node's allocatable resource keys whose name
// contains substr (e.g. "nvidia.com/gpu", "xilinx.com/fpga-xilinx-u280")
// into a single integer count, per spec.md §4.1.
func sumVendorResource(node corev1.Node, substr string) int64 {
	var total int64
	for key, qty := range node.Status.Allocatable {
		if strings.Contains(string(key), substr) {
			total += qty.Value()
		}
	}
	return total
}

func (b *Backend) Inventory(r *http.Request) (*model.InventoryEnvelope, error) {
	ctx := r.Context()

	nodeList, err := b.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	workers := workerNodes(nodeList.Items)

	nodes := make([]model.NodeInfo, 0, len(workers))
	for _, n := range workers {
		vaccel := false
		if v, ok := n.Labels[labelVaccel]; ok {
			vaccel = v == "true"
		}
		tier := 0
		if _, ok := n.Labels[labelSecurityTier]; ok {
			tier = 1
		}
		cpu := n.Status.Allocatable[corev1.ResourceCPU]
		mem := n.Status.Allocatable[corev1.ResourceMemory]
		nodes = append(nodes, model.NodeInfo{
			Name:         n.Name,
			Labels:       n.Labels,
			Vaccel:       vaccel,
			SecurityTier: tier,
			TotalCPU:     cpu.String(),
			TotalMemory:  mem.String(),
			TotalGPU:     sumVendorResource(n, "gpu"),
			TotalFPGA:    sumVendorResource(n, "fpga"),
		})
	}

	svcList, err := b.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	services := make([]model.ServiceInfo, 0, len(svcList.Items))
	for _, s := range svcList.Items {
		ports := make([]int32, 0, len(s.Spec.Ports))
		for _, p := range s.Spec.Ports {
			ports = append(ports, p.Port)
		}
		services = append(services, model.ServiceInfo{
			Name: s.Name, Namespace: s.Namespace, Type: string(s.Spec.Type),
			Ports: ports, Selector: s.Spec.Selector,
		})
	}

	deployList, err := b.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	deployments := make([]model.DeploymentInfo, 0, len(deployList.Items))
	for _, d := range deployList.Items {
		replicas := int32(0)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		deployments = append(deployments, model.DeploymentInfo{Name: d.Name, Namespace: d.Namespace, Replicas: replicas})
	}

	pvList, err := b.clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list persistent volumes: %w", err)
	}
	volumes := make([]model.PersistentVolumeInfo, 0, len(pvList.Items))
	for _, pv := range pvList.Items {
		cap := pv.Spec.Capacity[corev1.ResourceStorage]
		volumes = append(volumes, model.PersistentVolumeInfo{Name: pv.Name, CapacityStorage: cap.String()})
	}

	return &model.InventoryEnvelope{
		UUID: b.uuid,
		Type: model.ProbeTypeK8s,
		K8sInventoryData: &model.K8sInventory{
			Nodes: nodes, Services: services, Deployments: deployments, Volumes: volumes,
		},
	}, nil
}

func (b *Backend) Monitor(r *http.Request, target string) (*model.MonitorEnvelope, error) {
	ctx := r.Context()

	nodeList, err := b.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	workers := workerNodes(nodeList.Items)

	nodeMetrics := make([]model.NodeMetrics, 0, len(workers))
	for _, n := range workers {
		nm, err := b.scrapeNodeExporter(ctx, n.Name)
		if err != nil {
			b.logger.Warn("node-exporter scrape failed", zap.String("node", n.Name), zap.Error(err))
			continue
		}
		nodeMetrics = append(nodeMetrics, *nm)
	}

	pvList, err := b.clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list persistent volumes: %w", err)
	}
	volumes := make([]model.PersistentVolumeInfo, 0, len(pvList.Items))
	for _, pv := range pvList.Items {
		cap := pv.Spec.Capacity[corev1.ResourceStorage]
		volumes = append(volumes, model.PersistentVolumeInfo{Name: pv.Name, CapacityStorage: cap.String()})
	}

	deployList, err := b.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	deployStatus := make([]model.DeploymentStatusSample, 0, len(deployList.Items))
	for _, d := range deployList.Items {
		replicas := int32(0)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		deployStatus = append(deployStatus, model.DeploymentStatusSample{
			Name: d.Name, Namespace: d.Namespace, Replicas: replicas,
			ReadyReplicas: d.Status.ReadyReplicas, AvailableReplicas: d.Status.AvailableReplicas,
		})
	}

	podList, err := b.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	var podMetricsByName map[string]corev1.ResourceList
	if b.metrics != nil {
		podMetricsByName = make(map[string]corev1.ResourceList)
		pmList, err := b.metrics.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
		if err != nil {
			b.logger.Warn("pod metrics API unavailable", zap.Error(err))
		} else {
			for _, pm := range pmList.Items {
				var total corev1.ResourceList
				for _, c := range pm.Containers {
					total = sumResourceList(total, c.Usage)
				}
				podMetricsByName[pm.Namespace+"/"+pm.Name] = total
			}
		}
	}

	pods := make([]model.PodSample, 0, len(podList.Items))
	for _, p := range podList.Items {
		var restarts int32
		for _, cs := range p.Status.ContainerStatuses {
			restarts += cs.RestartCount
		}
		cpuUsage, memUsage := "", ""
		if usage, ok := podMetricsByName[p.Namespace+"/"+p.Name]; ok {
			if cpu, ok := usage[corev1.ResourceCPU]; ok {
				cpuUsage = fmt.Sprintf("%dn", cpu.ScaledValue(-9))
			}
			if mem, ok := usage[corev1.ResourceMemory]; ok {
				memUsage = fmt.Sprintf("%dKi", mem.Value()/1024)
			}
		}
		pods = append(pods, model.PodSample{
			Name: p.Name, Namespace: p.Namespace, Node: p.Spec.NodeName,
			Phase: string(p.Status.Phase), CreationTimestamp: p.CreationTimestamp.Time,
			CPUUsage: cpuUsage, MemoryUsage: memUsage, Restarts: restarts,
			Labels:                p.Labels,
			SerranoDeploymentUUID: p.Labels[labelDeploymentUUID],
			GroupID:               p.Labels[labelGroupID],
		})
	}

	svcList, err := b.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	services := make([]model.ServiceInfo, 0, len(svcList.Items))
	for _, s := range svcList.Items {
		ports := make([]int32, 0, len(s.Spec.Ports))
		for _, p := range s.Spec.Ports {
			ports = append(ports, p.Port)
		}
		services = append(services, model.ServiceInfo{Name: s.Name, Namespace: s.Namespace, Type: string(s.Spec.Type), Ports: ports, Selector: s.Spec.Selector})
	}

	return &model.MonitorEnvelope{
		UUID: b.uuid,
		Type: model.ProbeTypeK8s,
		K8sMonitoringData: &model.K8sMonitoring{
			Nodes: nodeMetrics, PersistentVolumes: volumes, Deployments: deployStatus,
			Pods: pods, Services: services,
		},
	}, nil
}

func sumResourceList(a, b corev1.ResourceList) corev1.ResourceList {
	if a == nil {
		a = corev1.ResourceList{}
	}
	for k, v := range b {
		cur := a[k]
		cur.Add(v)
		a[k] = cur
	}
	return a
}

// scrapeNodeExporter discovers the node-exporter endpoint for node via
// the named service's Endpoints list, scrapes its Prometheus text
// exposition, and folds the sample families into the fixed
// general/cpu/memory/storage/network groups (spec.md §4.1/§4.6).
func (b *Backend) scrapeNodeExporter(ctx context.Context, nodeName string) (*model.NodeMetrics, error) {
	endpoints, err := b.clientset.CoreV1().Endpoints(b.namespace).Get(ctx, b.cfg.NodeExporterService, metav1.GetOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("get node-exporter endpoints: %w", err)
	}

	addr := nodeNameToAddr(endpoints, nodeName)
	if addr == "" {
		return nil, fmt.Errorf("no node-exporter endpoint for node %s", nodeName)
	}

	url := fmt.Sprintf("http://%s:%d/metrics", addr, b.cfg.NodeExporterPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse node-exporter metrics: %w", err)
	}

	return foldNodeExporterFamilies(nodeName, families), nil
}

func nodeNameToAddr(endpoints *corev1.Endpoints, nodeName string) string {
	if endpoints == nil {
		return ""
	}
	for _, subset := range endpoints.Subsets {
		for _, addr := range subset.Addresses {
			if addr.NodeName != nil && *addr.NodeName == nodeName {
				return addr.IP
			}
		}
	}
	return ""
}
