package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

func TestKindForProbeTypeK8s(t *testing.T) {
	assert.Equal(t, model.ClusterKindK8s, model.KindForProbeType(model.ProbeTypeK8s))
}

func TestKindForProbeTypeDefaultsToHPC(t *testing.T) {
	assert.Equal(t, model.ClusterKindHPC, model.KindForProbeType(model.ProbeTypeHPC))
	assert.Equal(t, model.ClusterKindHPC, model.KindForProbeType(model.ProbeTypeEdgeStorage))
}
