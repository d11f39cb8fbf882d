// Package edgestorage implements the MinIO edge-storage probe backend,
// grounded on
// _examples/original_source/Probes/edge_storage/edgeStorageProbe.py:
// discover device pods by label selector, scrape each pod's Prometheus
// cluster-metrics endpoint, and sum named samples into the fixed
// six-field set (spec.md §4.6).
package edgestorage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

type Backend struct {
	uuid        string
	clusterUUID string
	namespace   string
	selector    string
	port        int
	clientset   kubernetes.Interface
	httpClient  *http.Client
	logger      *zap.Logger
}

func New(uuid string, cfg config.ProbeConfig, clientset kubernetes.Interface, logger *zap.Logger) *Backend {
	return &Backend{
		uuid:        uuid,
		clusterUUID: cfg.ClusterUUID,
		namespace:   cfg.EdgeStorageNamespace,
		selector:    cfg.EdgeStorageSelector,
		port:        cfg.EdgeStorageMetricPort,
		clientset:   clientset,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

func (b *Backend) UUID() string          { return b.uuid }
func (b *Backend) Type() model.ProbeType { return model.ProbeTypeEdgeStorage }

func (b *Backend) devicePods(ctx context.Context) ([]corev1.Pod, error) {
	list, err := b.clientset.CoreV1().Pods(b.namespace).List(ctx, metav1.ListOptions{LabelSelector: b.selector})
	if err != nil {
		return nil, fmt.Errorf("list minio pods: %w", err)
	}
	return list.Items, nil
}

func (b *Backend) Inventory(r *http.Request) (*model.InventoryEnvelope, error) {
	pods, err := b.devicePods(r.Context())
	if err != nil {
		return nil, err
	}

	devices := make([]model.EdgeStorageDevice, 0, len(pods))
	for _, p := range pods {
		devices = append(devices, model.EdgeStorageDevice{
			Name:        p.Name,
			ClusterUUID: b.clusterUUID,
			Node:        p.Spec.NodeName,
		})
	}

	return &model.InventoryEnvelope{
		UUID: b.uuid, Type: model.ProbeTypeEdgeStorage,
		EdgeStorageData: &model.EdgeStorageInventory{Devices: devices},
	}, nil
}

func (b *Backend) Monitor(r *http.Request, target string) (*model.MonitorEnvelope, error) {
	ctx := r.Context()
	pods, err := b.devicePods(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]model.EdgeStorageMonitoring, 0, len(pods))
	for _, p := range pods {
		if target != "" && p.Name != target {
			continue
		}
		fields, err := b.scrapePod(ctx, p.Status.PodIP)
		if err != nil {
			b.logger.Warn("minio scrape failed", zap.String("pod", p.Name), zap.Error(err))
			continue
		}
		samples = append(samples, model.EdgeStorageMonitoring{
			Name: p.Name, ClusterUUID: b.clusterUUID, Node: p.Spec.NodeName, Fields: *fields,
		})
	}

	return &model.MonitorEnvelope{
		UUID: b.uuid, Type: model.ProbeTypeEdgeStorage,
		EdgeStorageData: samples,
	}, nil
}

func (b *Backend) scrapePod(ctx context.Context, podIP string) (*model.MinioFields, error) {
	url := fmt.Sprintf("http://%s:%d/minio/v2/metrics/cluster", podIP, b.port)
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
		return nil, fmt.Errorf("parse minio metrics: %w", err)
	}

	fields := model.MinioFields{}
	fields.BucketUsageTotalBytes = sumFamily(families, "minio_bucket_usage_total_bytes")
	fields.NodeDiskFreeBytes = sumFamily(families, "minio_node_disk_free_bytes")
	fields.NodeDiskTotalBytes = sumFamily(families, "minio_node_disk_total_bytes")
	fields.S3RequestsTotal = sumFamily(families, "minio_s3_requests_total")
	fields.S3RequestsErrorsTotal = sumFamily(families, "minio_s3_requests_errors_total")
	fields.S3TrafficSentBytes = sumFamily(families, "minio_s3_traffic_sent_bytes")
	return &fields, nil
}

func sumFamily(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if g := m.GetGauge(); g != nil {
			total += g.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			total += c.GetValue()
		}
	}
	return total
}
