// Package aggregator is the status aggregator (Component G): it merges
// worker-published pub/sub events with periodic process-table and HTTP
// health polls into the authoritative RuntimeStatus for this machine, and
// publishes a snapshot on every transition.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/log"
	"github.com/gpufleet/orchestrator/internal/metrics"
	"github.com/gpufleet/orchestrator/internal/procutil"
	"github.com/gpufleet/orchestrator/internal/status"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

// UpdateType tags why a snapshot was published.
type UpdateType string

const (
	UpdateInitial      UpdateType = "initial"
	UpdatePeriodic     UpdateType = "periodic"
	UpdateEventDriven  UpdateType = "event_driven"
	UpdateShutdown     UpdateType = "shutdown"
	UpdateMachineReady UpdateType = "machine_ready"
)

// Snapshot is the payload published to machine:status:<machine_id>.
type Snapshot struct {
	MachineID  string               `json:"machine_id"`
	Timestamp  int64                `json:"timestamp"`
	UpdateType UpdateType           `json:"update_type"`
	Structure  *structure.Structure `json:"structure"`
	Status     *status.RuntimeStatus `json:"status"`
	HealthURL  string               `json:"health_url"`
}

// Clock supplies the wall-clock time the reducer stamps onto mutations
// and snapshots; swappable in tests.
type Clock func() time.Time

// Config tunes the aggregator's polling cadence and Redis topology.
type Config struct {
	MachineID    string
	PollInterval time.Duration // T_POLL, default 10s
	HealthURL    string
	Clock        Clock
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Aggregator owns the pub/sub subscriber and the periodic poller. Both
// apply their mutations to the RuntimeStatus under mu, so reducer steps
// never interleave.
type Aggregator struct {
	rdb *redis.Client
	sup *supervisor.Supervisor
	st  *structure.Structure
	cfg Config
	log *log.Logger

	mu      sync.RWMutex
	current *status.RuntimeStatus
	started time.Time
}

// New builds an Aggregator over an already-connected Redis client and the
// resolved Structure for this machine.
func New(rdb *redis.Client, sup *supervisor.Supervisor, st *structure.Structure, cfg Config) *Aggregator {
	cfg = cfg.withDefaults()
	rs := status.New()
	for wid := range st.Workers {
		rs.Workers[wid] = status.WorkerState{Status: status.WorkerUnknown}
	}
	for key := range st.Services {
		rs.Services[key] = status.ServiceState{Status: status.ServiceUnknown, Health: status.HealthUnknown, PM2Status: status.PM2Unknown}
	}

	return &Aggregator{
		rdb:     rdb,
		sup:     sup,
		st:      st,
		cfg:     cfg,
		log:     log.Default.WithComponent("aggregator").WithMachineID(cfg.MachineID),
		current: rs,
		started: cfg.Clock(),
	}
}

// Snapshot returns a safe-to-marshal copy of the current status document
// paired with the immutable structure.
func (a *Aggregator) Snapshot(updateType UpdateType) Snapshot {
	a.mu.RLock()
	rs := a.current.Clone()
	a.mu.RUnlock()

	return Snapshot{
		MachineID:  a.cfg.MachineID,
		Timestamp:  a.cfg.Clock().UnixMilli(),
		UpdateType: updateType,
		Structure:  a.st,
		Status:     rs,
		HealthURL:  a.cfg.HealthURL,
	}
}

// Run subscribes to the worker event pattern, starts the periodic poller,
// and drains both into the single reducer loop until ctx is cancelled. The
// caller only starts Run once startup has already brought every service
// and worker up, so the machine is ready by construction: Run transitions
// the phase to ready and publishes the "initial" snapshot reflecting that,
// then runs until ctx is cancelled, publishing a final "shutdown" snapshot
// before returning.
func (a *Aggregator) Run(ctx context.Context) error {
	a.mu.Lock()
	a.current.Machine.Phase = status.PhaseReady
	a.mu.Unlock()

	pattern := fmt.Sprintf("machine:%s:worker:*", a.cfg.MachineID)
	pubsub := a.rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if err := a.publish(ctx, UpdateInitial); err != nil {
		a.log.Warn().Err(err).Msg("failed to publish initial snapshot")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go a.subscribeLoop(ctx, pubsub, &wg)
	go a.pollLoop(ctx, &wg)

	<-ctx.Done()
	wg.Wait()

	a.mu.Lock()
	a.current.Machine.Phase = status.PhaseShutdown
	a.mu.Unlock()

	return a.publish(context.Background(), UpdateShutdown)
}

func (a *Aggregator) subscribeLoop(ctx context.Context, pubsub *redis.PubSub, wg *sync.WaitGroup) {
	defer wg.Done()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event, err := status.ParseEvent([]byte(msg.Payload))
			if err != nil {
				metrics.EventsDroppedTotal.Inc()
				a.log.Warn().Err(err).Msg("dropping malformed event payload")
				continue
			}
			if err := a.applyAndPublish(ctx, event); err != nil {
				a.log.Warn().Err(err).Msg("failed to apply event")
			}
		}
	}
}

func (a *Aggregator) pollLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runPoll(ctx)
		}
	}
}

func (a *Aggregator) runPoll(ctx context.Context) {
	// Only names the supervisor has ever registered appear in the table;
	// anything still StateNone is indistinguishable from "never existed"
	// and ReconcilePoll must see it as absent, not merely stopped.
	table := make([]status.ProcessEntry, 0, len(a.st.Workers)+len(a.st.Services))
	for _, w := range a.st.Workers {
		if s := a.sup.StateOf(w.PM2Name); s != supervisor.StateNone {
			table = append(table, status.ProcessEntry{PM2Name: w.PM2Name, Running: s == supervisor.StateRunning})
		}
	}
	for _, svc := range a.st.Services {
		if s := a.sup.StateOf(svc.PM2Name); s != supervisor.StateNone {
			table = append(table, status.ProcessEntry{PM2Name: svc.PM2Name, Running: s == supervisor.StateRunning || s == supervisor.StateReady})
		}
	}

	services := make([]status.ServiceProbe, 0, len(a.st.Services))
	for key, svc := range a.st.Services {
		health := status.HealthUnknown
		if svc.Port > 0 {
			res := procutil.HTTPProbe(ctx, fmt.Sprintf("http://%s:%d", svc.ExpectedHost, svc.Port), 2*time.Second)
			if res.OK() {
				health = status.HealthHealthy
			} else {
				health = status.HealthUnhealthy
			}
		}
		services = append(services, status.ServiceProbe{ServiceKey: key, PM2Name: svc.PM2Name, Port: svc.Port, Health: health})
	}

	workers := make([]status.WorkerProbe, 0, len(a.st.Workers))
	for _, w := range a.st.Workers {
		workers = append(workers, status.WorkerProbe{WorkerID: w.WorkerID, PM2Name: w.PM2Name})
	}

	a.mu.Lock()
	status.ReconcilePoll(a.current, table, services, workers)
	a.mu.Unlock()

	if err := a.publish(ctx, UpdatePeriodic); err != nil {
		a.log.Warn().Err(err).Msg("failed to publish periodic snapshot")
	}
}

func (a *Aggregator) applyAndPublish(ctx context.Context, e status.Event) error {
	a.mu.Lock()
	err := status.ApplyEvent(a.current, e, a.cfg.Clock().UnixMilli())
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.publish(ctx, UpdateEventDriven)
}

// MarkReady transitions the machine to phase=ready and publishes a
// machine_ready snapshot, called once startup has fully succeeded.
func (a *Aggregator) MarkReady(ctx context.Context) error {
	a.mu.Lock()
	a.current.Machine.Phase = status.PhaseReady
	a.mu.Unlock()
	return a.publish(ctx, UpdateMachineReady)
}

func (a *Aggregator) publish(ctx context.Context, updateType UpdateType) error {
	a.mu.Lock()
	a.current.Machine.UptimeMS = a.cfg.Clock().Sub(a.started).Milliseconds()
	onlineServices, connectedWorkers := 0, 0
	for _, svc := range a.current.Services {
		if svc.PM2Status == status.PM2Online {
			onlineServices++
		}
	}
	for _, w := range a.current.Workers {
		if w.IsConnected {
			connectedWorkers++
		}
	}
	a.mu.Unlock()

	metrics.ServicesOnline.Set(float64(onlineServices))
	metrics.WorkersConnected.Set(float64(connectedWorkers))
	metrics.StatusPublishTotal.WithLabelValues(string(updateType)).Inc()

	snap := a.Snapshot(updateType)
	data, err := json.Marshal(snap)
	if err != nil {
		return orcherrors.Wrap(err, "marshalling status snapshot")
	}
	channel := fmt.Sprintf("machine:status:%s", a.cfg.MachineID)
	if err := a.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return orcherrors.Wrap(err, "publishing status snapshot")
	}
	return nil
}
