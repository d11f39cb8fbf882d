package k8s

import (
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

// foldNodeExporterFamilies folds a node-exporter scrape into the fixed
// general/cpu/memory/storage/network field groups named in spec.md
// §4.6, matching the original source's per-sample accumulation over
// node_cpu_seconds_total{mode}, node_memory_*_bytes,
// node_filesystem_*_bytes, and node_network_*_bytes_total.
func foldNodeExporterFamilies(nodeName string, families map[string]*dto.MetricFamily) *model.NodeMetrics {
	nm := &model.NodeMetrics{NodeName: nodeName}

	idleByCPU := map[string]float64{}
	usedByCPU := map[string]float64{}

	for name, mf := range families {
		switch name {
		case "node_boot_time_seconds":
			if v, ok := firstValue(mf); ok {
				nm.General.NodeBootTimeSeconds = v
			}
		case "node_cpu_seconds_total":
			for _, metric := range mf.GetMetric() {
				cpu, mode := labelValue(metric, "cpu"), labelValue(metric, "mode")
				v := metric.GetCounter().GetValue()
				if mode == "idle" {
					idleByCPU[cpu] += v
				} else {
					usedByCPU[cpu] += v
				}
			}
		case "node_memory_MemTotal_bytes":
			if v, ok := firstValue(mf); ok {
				nm.Memory.MemoryTotalBytes = v
			}
		case "node_memory_MemFree_bytes":
			if v, ok := firstValue(mf); ok {
				nm.Memory.MemoryFreeBytes = v
				nm.Memory.MemoryUsedBytes = nm.Memory.MemoryTotalBytes - v
			}
		case "node_filesystem_size_bytes":
			nm.Storage.FilesystemSizeBytes += sumValues(mf)
		case "node_filesystem_free_bytes":
			nm.Storage.FilesystemFreeBytes += sumValues(mf)
		case "node_network_receive_bytes_total":
			nm.Network.ReceiveBytesTotal += sumValues(mf)
		case "node_network_transmit_bytes_total":
			nm.Network.TransmitBytesTotal += sumValues(mf)
		}
	}

	nm.CPU.NodeCPUs = len(idleByCPU)
	cpus := sortedCPUKeys(idleByCPU)
	nm.CPU.Idle = make([]float64, 0, len(cpus))
	nm.CPU.Used = make([]float64, 0, len(cpus))
	for _, cpu := range cpus {
		nm.CPU.Idle = append(nm.CPU.Idle, idleByCPU[cpu])
		nm.CPU.Used = append(nm.CPU.Used, usedByCPU[cpu])
	}

	return nm
}

func firstValue(mf *dto.MetricFamily) (float64, bool) {
	metrics := mf.GetMetric()
	if len(metrics) == 0 {
		return 0, false
	}
	m := metrics[0]
	if g := m.GetGauge(); g != nil {
		return g.GetValue(), true
	}
	if c := m.GetCounter(); c != nil {
		return c.GetValue(), true
	}
	return 0, false
}

func sumValues(mf *dto.MetricFamily) float64 {
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

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sortedCPUKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// numeric sort of cpu index labels ("0","1",...,"10")
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, errA := strconv.Atoi(keys[j-1])
			b, errB := strconv.Atoi(keys[j])
			if errA == nil && errB == nil && a > b {
				keys[j-1], keys[j] = keys[j], keys[j-1]
				continue
			}
			if errA != nil || errB != nil {
				if strings.Compare(keys[j-1], keys[j]) > 0 {
					keys[j-1], keys[j] = keys[j], keys[j-1]
					continue
				}
			}
			break
		}
	}
	return keys
}
