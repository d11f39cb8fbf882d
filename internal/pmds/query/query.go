// Package query implements the PMDS Query Engine (C10): Flux-style
// queries over the time-series store with compact/raw result formats
// (spec.md §4.10), grounded on
// _examples/original_source/PMDS/dataEngine.py.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/store/influx"
)

type Format string

const (
	FormatCompact Format = "compact"
	FormatRaw     Format = "raw"
)

// Params are the accepted query parameters, per spec.md §4.10.
type Params struct {
	Start       string
	Stop        string
	Namespace   string
	Name        string
	NodeName    string
	Measurement string
	ClusterUUID string
	Phase       string
	Format      Format
}

func (p Params) startOrDefault() string {
	if p.Start == "" {
		return "-1d"
	}
	return p.Start
}

// RawRecord is one flattened {tag columns, field, time, value} row.
type RawRecord struct {
	Tags   map[string]string `json:"tags"`
	Field  string             `json:"_field"`
	Time   time.Time          `json:"_time"`
	Value  any                `json:"_value"`
}

// CompactRecord groups every field of one primary-tag value at one
// timestamp into a single record.
type CompactRecord struct {
	Tags      map[string]string `json:"tags"`
	Time      time.Time          `json:"_time"`
	Fields    map[string]any     `json:"fields"`
}

// Engine is the read-only façade over one InfluxDB organization.
type Engine struct {
	store  *influx.Store
	logger *zap.Logger
}

func New(store *influx.Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

func fluxRange(p Params) string {
	if p.Stop != "" {
		return fmt.Sprintf("range(start: %s, stop: %s)", p.startOrDefault(), p.Stop)
	}
	return fmt.Sprintf("range(start: %s)", p.startOrDefault())
}

func fluxFilters(p Params, extra map[string]string) string {
	var b strings.Builder
	add := func(tag, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, " |> filter(fn: (r) => r.%s == \"%s\")", tag, value)
	}
	add("namespace", p.Namespace)
	add("name", p.Name)
	add("node_name", p.NodeName)
	add("cluster_uuid", p.ClusterUUID)
	add("phase", p.Phase)
	for tag, value := range extra {
		add(tag, value)
	}
	return b.String()
}

// QueryNodes implements the "nodes" group query. For group=cpu it first
// runs probeCPUCount (a |> last() |> distinct probe) and, for
// format=compact, passes that count to partitionCPUBlocks; see that
// function for what the count does and does not change.
func (e *Engine) QueryNodes(ctx context.Context, bucket, group string, p Params) (any, error) {
	flux := fmt.Sprintf(`from(bucket: "%s") |> %s |> filter(fn: (r) => r._measurement == "nodes" and r.group == "%s")%s`,
		bucket, fluxRange(p), group, fluxFilters(p, nil))

	if group == "cpu" {
		cpuCount, err := e.probeCPUCount(ctx, bucket, p)
		if err != nil {
			e.logger.Warn("cpu count probe failed", zap.Error(err))
		}
		rows, err := e.run(ctx, flux)
		if err != nil {
			return nil, err
		}
		if p.Format == FormatRaw {
			return rows, nil
		}
		return partitionCPUBlocks(rows, cpuCount), nil
	}

	rows, err := e.run(ctx, flux)
	if err != nil {
		return nil, err
	}
	if p.Format == FormatRaw {
		return rows, nil
	}
	return compact(rows, "node_name"), nil
}

// probeCPUCount runs |> last() |> distinct(column: "node_cpus") over the
// cpu group and returns the node_cpus tag of the first row only: one
// count for the whole query, not one count per node.
func (e *Engine) probeCPUCount(ctx context.Context, bucket string, p Params) (int, error) {
	flux := fmt.Sprintf(`from(bucket: "%s") |> %s |> filter(fn: (r) => r._measurement == "nodes" and r.group == "cpu")%s |> last() |> distinct(column: "node_cpus")`,
		bucket, fluxRange(p), fluxFilters(p, nil))
	rows, err := e.run(ctx, flux)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count := 0
	fmt.Sscan(rows[0].Tags["node_cpus"], &count)
	return count, nil
}

func (e *Engine) QueryPersistentVolumes(ctx context.Context, bucket string, p Params) (any, error) {
	return e.queryGroup(ctx, bucket, "persistentVolumes", "name", p)
}

func (e *Engine) QueryPods(ctx context.Context, bucket string, p Params) (any, error) {
	return e.queryGroup(ctx, bucket, "pods", "name", p)
}

func (e *Engine) QueryDeployments(ctx context.Context, bucket string, p Params) (any, error) {
	return e.queryGroup(ctx, bucket, "deployments", "name", p)
}

func (e *Engine) QueryEdgeStorage(ctx context.Context, bucket string, p Params) (any, error) {
	return e.queryGroup(ctx, bucket, "edge_storage", "name", p)
}

func (e *Engine) QuerySerranoDeployments(ctx context.Context, p Params) (any, error) {
	return e.queryGroup(ctx, influx.BucketDeployments, "serrano_deployments", "name", p)
}

func (e *Engine) queryGroup(ctx context.Context, bucket, measurement, primaryTag string, p Params) (any, error) {
	flux := fmt.Sprintf(`from(bucket: "%s") |> %s |> filter(fn: (r) => r._measurement == "%s")%s`,
		bucket, fluxRange(p), measurement, fluxFilters(p, nil))
	rows, err := e.run(ctx, flux)
	if err != nil {
		return nil, err
	}
	if p.Format == FormatRaw {
		return rows, nil
	}
	return compact(rows, primaryTag), nil
}

func (e *Engine) run(ctx context.Context, flux string) ([]RawRecord, error) {
	result, err := e.store.QueryAPI().Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("flux query failed: %w", err)
	}
	defer result.Close()

	var rows []RawRecord
	for result.Next() {
		rec := result.Record()
		tags := map[string]string{}
		for k, v := range rec.Values() {
			if s, ok := v.(string); ok && k != "_field" && k != "_value" && k != "_time" && k != "_measurement" {
				tags[k] = s
			}
		}
		rows = append(rows, RawRecord{Tags: tags, Field: rec.Field(), Time: rec.Time(), Value: rec.Value()})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("flux result error: %w", result.Err())
	}
	return rows, nil
}

// compact groups raw records by primaryTag+time and flattens all field
// values into one record per group, per spec.md §4.10.
func compact(rows []RawRecord, primaryTag string) []CompactRecord {
	type key struct {
		tag string
		t   int64
	}
	groups := map[key]*CompactRecord{}
	var order []key
	for _, r := range rows {
		k := key{tag: r.Tags[primaryTag], t: r.Time.UnixNano()}
		g, ok := groups[k]
		if !ok {
			g = &CompactRecord{Tags: r.Tags, Time: r.Time, Fields: map[string]any{}}
			groups[k] = g
			order = append(order, k)
		}
		g.Fields[r.Field] = r.Value
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].tag != order[j].tag {
			return order[i].tag < order[j].tag
		}
		return order[i].t < order[j].t
	})
	out := make([]CompactRecord, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

// partitionCPUBlocks returns the cpu-group rows compacted by node_name
// and time, the same records in the same order as
// compact(rows, "node_name"). cpuCount only sets the step of the loop
// that copies them; the result is one flat list and is not split into
// per-node blocks of 2*cpuCount.
func partitionCPUBlocks(rows []RawRecord, cpuCount int) []CompactRecord {
	grouped := compact(rows, "node_name")
	if cpuCount <= 0 {
		return grouped
	}
	blockSize := 2 * cpuCount
	out := make([]CompactRecord, 0, len(grouped))
	for i := 0; i < len(grouped); i += blockSize {
		end := i + blockSize
		if end > len(grouped) {
			end = len(grouped)
		}
		out = append(out, grouped[i:end]...)
	}
	return out
}
