package aggregator

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/status"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

func testRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func testSupervisorForAggregator(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	dir := t.TempDir()
	paths := platform.DefaultPaths().WithStateDir(dir)
	require.NoError(t, os.MkdirAll(paths.PidDir(), 0755))
	require.NoError(t, os.MkdirAll(paths.LogDir(), 0755))
	return supervisor.New(paths)
}

func simulationStructure(t *testing.T) *structure.Structure {
	t.Helper()
	records := []descriptor.AppRecord{
		{Name: "simulation-gpu0", Script: "true"},
		{Name: "redis-worker-simulation-0", Script: "true"},
	}
	st, err := structure.Build("simulation:1", mapping.Default, records, nil)
	require.NoError(t, err)
	return st
}

func TestRunPublishesInitialAndShutdownSnapshots(t *testing.T) {
	rdb, _ := testRedis(t)
	defer rdb.Close()
	sup := testSupervisorForAggregator(t)
	defer sup.Shutdown()

	st := simulationStructure(t)
	agg := New(rdb, sup, st, Config{MachineID: "m1", PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	sub := rdb.Subscribe(context.Background(), "machine:status:m1")
	defer sub.Close()
	msgCh := sub.Channel()

	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()

	var initial Snapshot
	select {
	case msg := <-msgCh:
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &initial))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}
	assert.Equal(t, UpdateInitial, initial.UpdateType)
	assert.Equal(t, "m1", initial.MachineID)
	assert.Equal(t, status.PhaseReady, initial.Status.Machine.Phase)

	cancel()

	var shutdown Snapshot
	select {
	case msg := <-msgCh:
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &shutdown))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown snapshot")
	}
	assert.Equal(t, UpdateShutdown, shutdown.UpdateType)
	assert.Equal(t, status.PhaseShutdown, shutdown.Status.Machine.Phase)

	require.NoError(t, <-done)
}

func TestApplyAndPublishAppliesWorkerEvent(t *testing.T) {
	rdb, _ := testRedis(t)
	defer rdb.Close()
	sup := testSupervisorForAggregator(t)
	defer sup.Shutdown()

	st := simulationStructure(t)
	agg := New(rdb, sup, st, Config{MachineID: "m1", PollInterval: time.Hour})

	data, err := json.Marshal(status.WorkerRegisteredData{Status: status.WorkerIdle, Capabilities: []string{"simulation"}})
	require.NoError(t, err)
	event := status.Event{WorkerID: "simulation-0", Kind: status.EventWorkerRegistered, Data: data}

	require.NoError(t, agg.applyAndPublish(context.Background(), event))

	snap := agg.Snapshot(UpdateEventDriven)
	w, ok := snap.Status.Workers["simulation-0"]
	require.True(t, ok)
	assert.True(t, w.IsConnected)
}

func TestMarkReadyTransitionsPhase(t *testing.T) {
	rdb, _ := testRedis(t)
	defer rdb.Close()
	sup := testSupervisorForAggregator(t)
	defer sup.Shutdown()

	st := simulationStructure(t)
	agg := New(rdb, sup, st, Config{MachineID: "m1"})

	require.NoError(t, agg.MarkReady(context.Background()))
	snap := agg.Snapshot(UpdateMachineReady)
	assert.Equal(t, status.PhaseReady, snap.Status.Machine.Phase)
}

func TestRunPollReconcilesAgainstSupervisorState(t *testing.T) {
	rdb, _ := testRedis(t)
	defer rdb.Close()
	sup := testSupervisorForAggregator(t)
	defer sup.Shutdown()

	st := simulationStructure(t)
	agg := New(rdb, sup, st, Config{MachineID: "m1"})

	agg.runPoll(context.Background())

	snap := agg.Snapshot(UpdatePeriodic)
	svc, ok := snap.Status.Services["simulation-0.simulation"]
	require.True(t, ok)
	assert.Equal(t, status.PM2NotFound, svc.PM2Status)
}
