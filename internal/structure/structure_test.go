package structure

import (
	"errors"
	"testing"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkersEmptyIsMissing(t *testing.T) {
	_, err := ParseWorkers("")
	assert.ErrorIs(t, err, orcherrors.ErrMissingWorkers)
}

func TestParseWorkersRejectsZeroCount(t *testing.T) {
	_, err := ParseWorkers("comfyui:0")
	require.Error(t, err)
}

func TestParseWorkersMultiple(t *testing.T) {
	specs, err := ParseWorkers("comfyui:2, ollama:1")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, WorkerSpec{Type: "comfyui", Count: 2}, specs[0])
	assert.Equal(t, WorkerSpec{Type: "ollama", Count: 1}, specs[1])
}

func TestBuildMinimalHappyPath(t *testing.T) {
	tbl := mapping.New()
	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Args: []string{"--port=8299"}},
		{Name: "redis-worker-simulation-0"},
	}

	s, err := Build("simulation:1", tbl, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, s.GPUCount)
	w, ok := s.Workers["simulation-0"]
	require.True(t, ok)
	assert.Equal(t, []string{"simulation"}, w.Services)

	svc, ok := s.Services[ServiceKey("simulation-0", "simulation")]
	require.True(t, ok)
	assert.Equal(t, 8299, svc.Port)
}

func TestBuildGPUMultiInstance(t *testing.T) {
	tbl := mapping.New()
	records := []descriptor.AppRecord{
		{Name: "comfyui-gpu0", Args: []string{"--port=8188"}},
		{Name: "comfyui-gpu1", Args: []string{"--port=8189"}},
		{Name: "redis-worker-comfyui-0"},
		{Name: "redis-worker-comfyui-1"},
	}

	s, err := Build("comfyui:2", tbl, records, map[string]int{"comfyui": 8188})
	require.NoError(t, err)

	assert.Equal(t, 2, s.GPUCount)
	svc0 := s.Services[ServiceKey("comfyui-0", "comfyui")]
	svc1 := s.Services[ServiceKey("comfyui-1", "comfyui")]
	assert.Equal(t, 8188, svc0.Port)
	assert.Equal(t, 8189, svc1.Port)
}

func TestBuildUnknownWorkerType(t *testing.T) {
	tbl := mapping.New()
	_, err := Build("bogus:1", tbl, nil, nil)
	require.Error(t, err)
	var de *orcherrors.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "UNKNOWN_WORKER_TYPE", de.Code)
}

func TestBuildIgnoresConnectorsMappingWins(t *testing.T) {
	tbl := mapping.New()
	records := []descriptor.AppRecord{
		{Name: "redis-worker-comfyui-0", Env: map[string]string{"CONNECTORS": "ollama,a1111"}},
		{Name: "comfyui-gpu0", Args: []string{"--port=8188"}},
	}

	s, err := Build("comfyui:1", tbl, records, nil)
	require.NoError(t, err)

	w := s.Workers["comfyui-0"]
	assert.Equal(t, []string{"comfyui"}, w.Services, "mapping must win over raw CONNECTORS")
	assert.Equal(t, []string{"ollama", "a1111"}, w.Connectors)
}

func TestBuildIsDeterministic(t *testing.T) {
	tbl := mapping.New()
	records := []descriptor.AppRecord{
		{Name: "comfyui-gpu0", Args: []string{"--port=8188"}},
		{Name: "redis-worker-comfyui-0"},
	}

	s1, err := Build("comfyui:1", tbl, records, nil)
	require.NoError(t, err)
	s2, err := Build("comfyui:1", tbl, records, nil)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestBuildFromMappingOnlyFallback(t *testing.T) {
	tbl := mapping.New()
	s, err := BuildFromMappingOnly("simulation:1", tbl, nil)
	require.NoError(t, err)
	w := s.Workers["simulation-0"]
	assert.Equal(t, descriptor.WorkerNamePrefix+"simulation-0", w.PM2Name)
}

func TestGPUCountAtLeastOne(t *testing.T) {
	tbl := mapping.New()
	s, err := Build("simulation:1", tbl, nil, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.GPUCount, 1)
}
