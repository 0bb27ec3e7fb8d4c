// Package orchestrator drives machine startup: parallel backend-service
// spawn followed by strictly sequential, readiness-gated worker attach.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/installcheck"
	"github.com/gpufleet/orchestrator/internal/log"
	"github.com/gpufleet/orchestrator/internal/mapping"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/supervisor"
)

// Config tunes the startup timings. Zero values fall back to the spec's
// defaults.
type Config struct {
	// ValidateDelay is T_VALIDATE: the settle time after a worker spawns,
	// letting it connect to its backend before the pair is considered
	// started.
	ValidateDelay time.Duration
	// ReadyMaxAttempts overrides the supervisor's generic/heavy default
	// readiness budget when non-zero.
	ReadyMaxAttempts int
	// ReadyInterval is the delay between readiness probes.
	ReadyInterval time.Duration
	// WorkerAuthToken, if set, is injected into every spawned worker's
	// environment as WORKER_WEBSOCKET_AUTH_TOKEN.
	WorkerAuthToken string
	// GPUMode is "actual" or "mock". In mock mode, heavy (gpu/mock_gpu
	// bound) backend services are spawned with a CPU-fallback argument
	// instead of expecting real GPU hardware.
	GPUMode string
}

const (
	gpuModeMock        = "mock"
	cpuFallbackArg     = "--cpu-fallback"
	workerAuthTokenEnv = "WORKER_WEBSOCKET_AUTH_TOKEN"
)

func (c Config) withDefaults() Config {
	if c.ValidateDelay <= 0 {
		c.ValidateDelay = 3 * time.Second
	}
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = time.Second
	}
	return c
}

// Orchestrator runs the two-phase startup sequence over a resolved
// Structure, using the supervisor to spawn and probe every process.
type Orchestrator struct {
	sup     *supervisor.Supervisor
	tbl     *mapping.Table
	st      *structure.Structure
	records map[string]descriptor.AppRecord
	cfg     Config
	log     *log.Logger
	checker installcheck.Checker

	startedMu sync.Mutex
	started   []string
}

// New builds an Orchestrator. records maps descriptor app name (pm2_name)
// to its AppRecord, for every entry in the loaded descriptor.
func New(sup *supervisor.Supervisor, tbl *mapping.Table, st *structure.Structure, records []descriptor.AppRecord, cfg Config) *Orchestrator {
	byName := make(map[string]descriptor.AppRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	return &Orchestrator{
		sup:     sup,
		tbl:     tbl,
		st:      st,
		records: byName,
		cfg:     cfg.withDefaults(),
		log:     log.Default.WithComponent("orchestrator"),
		checker: installcheck.AlwaysPass{},
	}
}

// WithChecker overrides the installation-prerequisite checker, default
// installcheck.AlwaysPass.
func (o *Orchestrator) WithChecker(c installcheck.Checker) *Orchestrator {
	o.checker = c
	return o
}

// StartedServices returns the pm2_names of every service and worker that
// has been started, in start order. After a failed Run the started
// processes have been torn down and the list is empty.
func (o *Orchestrator) StartedServices() []string {
	o.startedMu.Lock()
	defer o.startedMu.Unlock()
	return append([]string(nil), o.started...)
}

type servicePairing struct {
	pm2Name  string
	probeURL string
	heavy    bool
}

// Run executes the full startup sequence. It is all-or-nothing: any
// failure tears down everything already started, in LIFO order, and
// returns a typed error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.checker.EnsureWorkerBundlePresent() {
		return orcherrors.InstallMissing("worker bundle is not present")
	}

	for _, svcType := range o.serviceTypes() {
		if res := o.checker.EnsureBackendInstalled(svcType); !res.Installed {
			return orcherrors.InstallMissing(res.Message)
		}
	}

	pairings := o.collectServicePairings()

	if err := o.runPhase1(ctx, pairings); err != nil {
		o.teardown()
		return err
	}

	if err := o.runPhase3(ctx); err != nil {
		o.teardown()
		return err
	}

	return nil
}

// serviceTypes returns every distinct service type this structure needs,
// sorted, for the installation-prerequisite check.
func (o *Orchestrator) serviceTypes() []string {
	seen := make(map[string]struct{})
	for _, inst := range o.st.Services {
		seen[inst.ServiceType] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// collectServicePairings deduplicates service instances by pm2_name: a
// shared-binding backend may be referenced by more than one worker.
func (o *Orchestrator) collectServicePairings() []servicePairing {
	seen := make(map[string]servicePairing)
	for _, inst := range o.st.Services {
		if _, ok := seen[inst.PM2Name]; ok {
			continue
		}
		heavy := false
		if def, ok := o.tbl.GetService(inst.ServiceType); ok {
			heavy = def.ResourceBinding == mapping.BindingGPU || def.ResourceBinding == mapping.BindingMockGPU
		}
		var probeURL string
		if inst.Port > 0 {
			probeURL = fmt.Sprintf("http://%s:%d", inst.ExpectedHost, inst.Port)
		}
		seen[inst.PM2Name] = servicePairing{pm2Name: inst.PM2Name, probeURL: probeURL, heavy: heavy}
	}

	out := make([]servicePairing, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pm2Name < out[j].pm2Name })
	return out
}

// runPhase1 starts every backend service concurrently and waits for all
// spawns (not readiness) to complete.
func (o *Orchestrator) runPhase1(ctx context.Context, pairings []servicePairing) error {
	g, _ := errgroup.WithContext(ctx)
	var failures failSet

	for _, p := range pairings {
		p := p
		g.Go(func() error {
			rec, ok := o.records[p.pm2Name]
			if !ok {
				failures.add(p.pm2Name)
				return orcherrors.SpawnFailed(p.pm2Name, fmt.Errorf("no descriptor entry for %q", p.pm2Name))
			}
			if p.heavy && o.cfg.GPUMode == gpuModeMock {
				rec.Args = append(append([]string(nil), rec.Args...), cpuFallbackArg)
			}
			if err := o.sup.Start(rec, p.probeURL, p.heavy); err != nil {
				failures.add(p.pm2Name)
				return err
			}
			o.markStarted(p.pm2Name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return orcherrors.ServicePhaseFailed(failures.names())
	}
	return nil
}

// runPhase3 sequentially gates on each paired service's readiness, then
// spawns and settles its worker, in index order.
func (o *Orchestrator) runPhase3(ctx context.Context) error {
	workers := make([]structure.WorkerDef, 0, len(o.st.Workers))
	for _, w := range o.st.Workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		if workers[i].Index != workers[j].Index {
			return workers[i].Index < workers[j].Index
		}
		return workers[i].WorkerID < workers[j].WorkerID
	})

	for _, w := range workers {
		for _, svcName := range w.Services {
			key := structure.ServiceKey(w.WorkerID, svcName)
			inst, ok := o.st.Services[key]
			if !ok {
				continue
			}
			if err := o.sup.ReadyWait(inst.PM2Name, o.cfg.ReadyMaxAttempts, o.cfg.ReadyInterval); err != nil {
				return err
			}
		}

		workerRec, ok := o.records[w.PM2Name]
		if !ok {
			return orcherrors.SpawnFailed(w.PM2Name, fmt.Errorf("no descriptor entry for %q", w.PM2Name))
		}
		if o.cfg.WorkerAuthToken != "" {
			env := make(map[string]string, len(workerRec.Env)+1)
			for k, v := range workerRec.Env {
				env[k] = v
			}
			env[workerAuthTokenEnv] = o.cfg.WorkerAuthToken
			workerRec.Env = env
		}
		if err := o.sup.Start(workerRec, "", false); err != nil {
			return err
		}
		o.markStarted(w.PM2Name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.ValidateDelay):
		}

		if o.sup.StateOf(w.PM2Name) != supervisor.StateStopped && o.sup.StateOf(w.PM2Name) != supervisor.StateFailed {
			if err := o.sup.MarkRunning(w.PM2Name); err != nil {
				o.log.Warn().Str("name", w.PM2Name).Err(err).Msg("failed to mark worker running")
			}
		} else {
			return orcherrors.SpawnFailed(w.PM2Name, fmt.Errorf("worker exited during validation window"))
		}
	}

	return nil
}

func (o *Orchestrator) markStarted(name string) {
	o.startedMu.Lock()
	defer o.startedMu.Unlock()
	o.started = append(o.started, name)
}

// teardown stops every started service in LIFO order, used when startup
// fails partway through.
func (o *Orchestrator) teardown() {
	o.startedMu.Lock()
	started := append([]string(nil), o.started...)
	o.started = nil
	o.startedMu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		if err := o.sup.Stop(started[i]); err != nil {
			o.log.Warn().Str("name", started[i]).Err(err).Msg("teardown stop failed")
		}
	}
}

// failSet is a concurrency-safe accumulator for failed service names
// surfaced by Phase 1's errgroup, whose goroutines may report in parallel.
type failSet struct {
	mu     sync.Mutex
	failed []string
}

func (f *failSet) add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, name)
}

func (f *failSet) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.failed...)
	sort.Strings(out)
	return out
}
