package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/orchestrator/internal/aggregator"
	"github.com/gpufleet/orchestrator/internal/descriptor"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	dir := t.TempDir()
	paths := platform.DefaultPaths().WithStateDir(dir)
	require.NoError(t, os.MkdirAll(paths.PidDir(), 0755))
	require.NoError(t, os.MkdirAll(paths.LogDir(), 0755))
	return supervisor.New(paths)
}

func testAggregator(t *testing.T, st *structure.Structure, pollInterval time.Duration) (*aggregator.Aggregator, *supervisor.Supervisor) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sup := testSupervisor(t)
	t.Cleanup(sup.Shutdown)

	agg := aggregator.New(rdb, sup, st, aggregator.Config{MachineID: "m1", PollInterval: pollInterval})
	return agg, sup
}

func simpleStructure(t *testing.T) *structure.Structure {
	t.Helper()
	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{Name: "redis-worker-simulation-0", Script: "true"},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	return st
}

func TestHealthRouteReportsUnavailableWhenNothingOnline(t *testing.T) {
	st := simpleStructure(t)
	agg, _ := testAggregator(t, st, time.Hour)
	deps := &Dependencies{Aggregator: agg}

	w := httptest.NewRecorder()
	c, engine := gin.CreateTestContext(w)
	RegisterRoutes(engine, deps)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, c.Request)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusRouteReturnsStructureAndStatus(t *testing.T) {
	st := simpleStructure(t)
	agg, _ := testAggregator(t, st, time.Hour)
	deps := &Dependencies{Aggregator: agg}

	w := httptest.NewRecorder()
	_, engine := gin.CreateTestContext(w)
	RegisterRoutes(engine, deps)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp.MachineID)
	assert.Contains(t, resp.Structure.Services, "simulation-0.simulation")
}

func TestServicesRouteListsEveryInstance(t *testing.T) {
	st := simpleStructure(t)
	agg, _ := testAggregator(t, st, time.Hour)
	deps := &Dependencies{Aggregator: agg}

	w := httptest.NewRecorder()
	_, engine := gin.CreateTestContext(w)
	RegisterRoutes(engine, deps)
	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Services []ServiceDetail `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Services, 1)
}

func TestServiceHealthRouteUnknownServiceReturns404(t *testing.T) {
	st := simpleStructure(t)
	agg, _ := testAggregator(t, st, time.Hour)
	deps := &Dependencies{Aggregator: agg}

	w := httptest.NewRecorder()
	_, engine := gin.CreateTestContext(w)
	RegisterRoutes(engine, deps)
	req := httptest.NewRequest(http.MethodGet, "/services/does-not-exist/health", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadyRouteBecomesOKAfterPollReconcilesHealthyServices(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer probe.Close()
	port := probe.Listener.Addr().(*net.TCPAddr).Port

	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "sleep", Args: []string{"5"}},
		{Name: "redis-worker-simulation-0", Script: "sleep", Args: []string{"5"}},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	for k, inst := range st.Services {
		inst.Port = port
		inst.ExpectedHost = "127.0.0.1"
		st.Services[k] = inst
	}

	agg, sup := testAggregator(t, st, 20*time.Millisecond)
	require.NoError(t, sup.Start(records[0], "", false))
	require.NoError(t, sup.Start(records[1], "", false))
	require.NoError(t, sup.MarkRunning(records[0].Name))
	require.NoError(t, sup.MarkRunning(records[1].Name))

	deps := &Dependencies{Aggregator: agg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agg.Run(ctx)
	require.NoError(t, agg.MarkReady(context.Background()))

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		_, engine := gin.CreateTestContext(w)
		RegisterRoutes(engine, deps)
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		engine.ServeHTTP(w, req)
		return w.Code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}
