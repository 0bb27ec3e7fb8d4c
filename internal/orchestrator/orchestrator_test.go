package orchestrator

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/installcheck"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

type rejectingChecker struct{}

func (rejectingChecker) EnsureBackendInstalled(serviceType string) installcheck.Result {
	return installcheck.Result{Installed: false, Message: serviceType + " is not installed"}
}

func (rejectingChecker) EnsureWorkerBundlePresent() bool { return true }

func testSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	dir := t.TempDir()
	paths := platform.DefaultPaths().WithStateDir(dir)
	require.NoError(t, os.MkdirAll(paths.PidDir(), 0755))
	require.NoError(t, os.MkdirAll(paths.LogDir(), 0755))
	return supervisor.New(paths)
}

func buildSimulationStructure(t *testing.T, port int) (*structure.Structure, []descriptor.AppRecord) {
	t.Helper()
	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{Name: "redis-worker-simulation-0", Script: "sleep", Args: []string{"5"}},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	// Override the port the structure derived from BasePort with the
	// ephemeral port the test server is actually listening on.
	for k, inst := range st.Services {
		inst.Port = port
		st.Services[k] = inst
	}
	return st, records
}

func TestRunHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	port := srv.Listener.Addr().(*net.TCPAddr).Port

	sup := testSupervisor(t)
	defer sup.Shutdown()

	st, records := buildSimulationStructure(t, port)
	for k, inst := range st.Services {
		inst.ExpectedHost = "127.0.0.1"
		st.Services[k] = inst
	}

	orch := New(sup, mapping.Default, st, records, Config{ValidateDelay: 10 * time.Millisecond, ReadyInterval: 10 * time.Millisecond, ReadyMaxAttempts: 5})

	require.NoError(t, orch.Run(context.Background()))
	assert.Contains(t, orch.StartedServices(), "simulation-gpu0")
	assert.Contains(t, orch.StartedServices(), "redis-worker-simulation-0")
	assert.Equal(t, supervisor.StateRunning, sup.StateOf("redis-worker-simulation-0"))
}

func TestRunPhase1FailureTeardown(t *testing.T) {
	sup := testSupervisor(t)
	defer sup.Shutdown()

	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "/nonexistent/binary-does-not-exist"},
		{Name: "redis-worker-simulation-0", Script: "sleep", Args: []string{"5"}},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)

	orch := New(sup, mapping.Default, st, records, Config{})
	err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, orch.StartedServices())
}

func TestRunReadyTimeoutTearsDownServices(t *testing.T) {
	sup := testSupervisor(t)
	defer sup.Shutdown()

	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "sleep", Args: []string{"5"}},
		{Name: "redis-worker-simulation-0", Script: "sleep", Args: []string{"5"}},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	for k, inst := range st.Services {
		inst.Port = 1
		inst.ExpectedHost = "127.0.0.1"
		st.Services[k] = inst
	}

	orch := New(sup, mapping.Default, st, records, Config{ReadyMaxAttempts: 2, ReadyInterval: 5 * time.Millisecond})
	err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, orch.StartedServices())
}

func TestRunFailsInstallCheckBeforeStartingAnything(t *testing.T) {
	sup := testSupervisor(t)
	defer sup.Shutdown()

	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{Name: "redis-worker-simulation-0", Script: "true"},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)

	orch := New(sup, mapping.Default, st, records, Config{}).WithChecker(rejectingChecker{})
	err = orch.Run(context.Background())
	require.Error(t, err)
	var orchErr *orcherrors.Error
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, "INSTALL_MISSING", orchErr.Code)
	assert.Empty(t, orch.StartedServices())
}

func TestRunInjectsWorkerAuthTokenIntoWorkerEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	sup := testSupervisor(t)
	defer sup.Shutdown()

	marker := filepath.Join(t.TempDir(), "marker")
	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{
			Name:   "redis-worker-simulation-0",
			Script: "sh",
			Args:   []string{"-c", `if [ "$WORKER_WEBSOCKET_AUTH_TOKEN" = "secret-token" ]; then touch "$1"; fi; sleep 5`, "_", marker},
		},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	for k, inst := range st.Services {
		inst.Port = port
		inst.ExpectedHost = "127.0.0.1"
		st.Services[k] = inst
	}

	orch := New(sup, mapping.Default, st, records, Config{
		ValidateDelay:    10 * time.Millisecond,
		ReadyInterval:    10 * time.Millisecond,
		ReadyMaxAttempts: 5,
		WorkerAuthToken:  "secret-token",
	})

	require.NoError(t, orch.Run(context.Background()))

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(marker)
		return statErr == nil
	}, time.Second, 10*time.Millisecond, "worker did not observe WORKER_WEBSOCKET_AUTH_TOKEN in its env")
}

func TestRunPhase1AppliesCPUFallbackArgForMockGPUServices(t *testing.T) {
	sup := testSupervisor(t)
	defer sup.Shutdown()

	marker := filepath.Join(t.TempDir(), "marker")
	records := []descriptor.AppRecord{
		{
			Name:   "ollama-gpu0",
			Script: "sh",
			Args:   []string{"-c", `if [ "$2" = "--cpu-fallback" ]; then touch "$1"; fi`, "_", marker},
		},
	}
	st, err := structure.Build("ollama:1", mapping.Default, records, nil)
	require.NoError(t, err)

	orch := New(sup, mapping.Default, st, records, Config{GPUMode: gpuModeMock})
	pairings := orch.collectServicePairings()
	require.Len(t, pairings, 1)
	require.True(t, pairings[0].heavy, "ollama is mock_gpu bound and must be treated as heavy")

	require.NoError(t, orch.runPhase1(context.Background(), pairings))

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(marker)
		return statErr == nil
	}, time.Second, 10*time.Millisecond, "backend did not receive --cpu-fallback in mock GPU mode")
}

func TestCollectServicePairingsDeduplicatesByPM2Name(t *testing.T) {
	sup := testSupervisor(t)
	defer sup.Shutdown()

	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{Name: "redis-worker-simulation-0", Script: "true"},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)

	orch := New(sup, mapping.Default, st, records, Config{})
	pairings := orch.collectServicePairings()
	assert.Len(t, pairings, 1)
	assert.Equal(t, "simulation-gpu0", pairings[0].pm2Name)
}
