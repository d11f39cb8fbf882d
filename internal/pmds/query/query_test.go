package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompactGroupsByPrimaryTagAndTime(t *testing.T) {
	ts := time.Unix(1000, 0)
	rows := []RawRecord{
		{Tags: map[string]string{"name": "pod-a"}, Field: "cpu_usage", Time: ts, Value: "10n"},
		{Tags: map[string]string{"name": "pod-a"}, Field: "memory_usage", Time: ts, Value: "20Ki"},
		{Tags: map[string]string{"name": "pod-b"}, Field: "cpu_usage", Time: ts, Value: "30n"},
	}

	out := compact(rows, "name")

	assert.Len(t, out, 2)
	assert.Equal(t, "pod-a", out[0].Tags["name"])
	assert.Equal(t, "10n", out[0].Fields["cpu_usage"])
	assert.Equal(t, "20Ki", out[0].Fields["memory_usage"])
	assert.Equal(t, "pod-b", out[1].Tags["name"])
}

func TestCompactSeparatesRowsAtDifferentTimestamps(t *testing.T) {
	rows := []RawRecord{
		{Tags: map[string]string{"name": "pod-a"}, Field: "cpu_usage", Time: time.Unix(1, 0), Value: "1n"},
		{Tags: map[string]string{"name": "pod-a"}, Field: "cpu_usage", Time: time.Unix(2, 0), Value: "2n"},
	}

	out := compact(rows, "name")

	assert.Len(t, out, 2)
}

func TestPartitionCPUBlocksSplitsIntoPerNodeGroups(t *testing.T) {
	ts := time.Unix(1, 0)
	rows := []RawRecord{
		{Tags: map[string]string{"node_name": "n1"}, Field: "cpu_0_idle", Time: ts, Value: 1.0},
		{Tags: map[string]string{"node_name": "n1"}, Field: "cpu_0_idle", Time: time.Unix(2, 0), Value: 2.0},
		{Tags: map[string]string{"node_name": "n2"}, Field: "cpu_0_idle", Time: ts, Value: 3.0},
	}

	out := partitionCPUBlocks(rows, 1)

	assert.Len(t, out, 3)
}

func TestPartitionCPUBlocksFallsBackWhenCountUnknown(t *testing.T) {
	rows := []RawRecord{
		{Tags: map[string]string{"node_name": "n1"}, Field: "cpu_0_idle", Time: time.Unix(1, 0), Value: 1.0},
	}

	out := partitionCPUBlocks(rows, 0)

	assert.Len(t, out, 1)
}
