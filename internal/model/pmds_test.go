package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

func TestCPUMillicores(t *testing.T) {
	v, ok := model.CPUMillicores("123000000n")
	assert.True(t, ok)
	assert.InDelta(t, 123, v, 0.0001)
}

func TestCPUMillicoresRejectsWrongSuffix(t *testing.T) {
	_, ok := model.CPUMillicores("123000000Ki")
	assert.False(t, ok)
}

func TestMemoryMB(t *testing.T) {
	v, ok := model.MemoryMB("1000000Ki")
	assert.True(t, ok)
	assert.InDelta(t, 1024, v, 0.0001)
}

func TestMemoryMBRejectsMalformedNumber(t *testing.T) {
	_, ok := model.MemoryMB("notanumberKi")
	assert.False(t, ok)
}
