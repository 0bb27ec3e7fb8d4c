package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `[
  {"name": "simulation-gpu0", "script": "sim-server", "args": ["--port=8299"], "env": {}},
  {"name": "redis-worker-simulation-0", "script": "worker.js", "args": [], "env": {"CONNECTORS": "simulation"}}
]`

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, orcherrors.ErrNotFound))
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	var de *orcherrors.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "DESCRIPTOR_MALFORMED", de.Code)
}

func TestParseSampleDescriptor(t *testing.T) {
	records, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "simulation-gpu0", records[0].Name)
}

func TestParseWorkerName(t *testing.T) {
	wt, idx, ok := ParseWorkerName("redis-worker-comfyui-2")
	require.True(t, ok)
	assert.Equal(t, "comfyui", wt)
	assert.Equal(t, 2, idx)

	_, _, ok = ParseWorkerName("comfyui-gpu2")
	assert.False(t, ok)
}

func TestParseServiceName(t *testing.T) {
	base, idx, ok := ParseServiceName("comfyui-gpu1")
	require.True(t, ok)
	assert.Equal(t, "comfyui", base)
	assert.Equal(t, 1, idx)

	base, _, ok = ParseServiceName("ollama")
	assert.False(t, ok)
	assert.Equal(t, "ollama", base)
}

func TestPortFromArgsAndEnv(t *testing.T) {
	p, ok := PortFromArgs([]string{"--foo=bar", "--port=8188"})
	require.True(t, ok)
	assert.Equal(t, 8188, p)

	_, ok = PortFromArgs([]string{"--foo=bar"})
	assert.False(t, ok)

	p, ok = PortFromEnv(map[string]string{"COMFYUI_PORT": "8189"}, "COMFYUI_PORT")
	require.True(t, ok)
	assert.Equal(t, 8189, p)
}
