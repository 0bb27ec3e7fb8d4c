// Package supervisor owns per-service process lifecycle: spawn, PID/port
// ownership, health probes, graceful stop, forced kill, and restart. It is
// the only component that mutates the process table and pidfiles; the
// status aggregator only reads them.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/log"
	"github.com/gpufleet/orchestrator/internal/metrics"
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/procutil"
)

// HealthStatus is the outcome of an on-demand health probe.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const (
	defaultGenericAttempts = 60
	defaultHeavyAttempts   = 120
	defaultProbeInterval   = 1 * time.Second
)

// AppHandle is the supervisor's view of one supervised process.
type AppHandle struct {
	Record   descriptor.AppRecord
	ProbeURL string
	Heavy    bool

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	pid       int
	startedAt time.Time
	exitErr   error
}

// State returns the handle's current lifecycle state.
func (h *AppHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PID returns the last known PID, 0 if never started.
func (h *AppHandle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

func (h *AppHandle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// Supervisor manages the full set of services on this machine.
type Supervisor struct {
	mu      sync.RWMutex
	apps    map[string]*AppHandle
	order   []string // start order, for LIFO shutdown
	paths   *platform.Paths
	log     *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	GraceTimeout time.Duration
	KillTimeout  time.Duration
}

// New creates a Supervisor rooted at paths for pidfiles and logs.
func New(paths *platform.Paths) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		apps:         make(map[string]*AppHandle),
		paths:        paths,
		log:          log.Default.WithComponent("supervisor"),
		ctx:          ctx,
		cancel:       cancel,
		GraceTimeout: procutil.DefaultGraceTimeout,
		KillTimeout:  procutil.DefaultKillTimeout,
	}
}

// Start spawns rec's process. probeURL is the HTTP readiness/health probe
// target, empty if the service has none (e.g. a worker process).
func (s *Supervisor) Start(rec descriptor.AppRecord, probeURL string, heavy bool) error {
	s.mu.Lock()
	handle, exists := s.apps[rec.Name]
	if !exists {
		handle = &AppHandle{Record: rec, ProbeURL: probeURL, Heavy: heavy, state: StateNone}
		s.apps[rec.Name] = handle
		s.order = append(s.order, rec.Name)
	}
	s.mu.Unlock()

	if handle.State() == StateRunning || handle.State() == StateReady {
		return nil
	}

	if port, ok := descriptor.PortFromArgs(rec.Args); ok {
		if err := s.ensurePortFree(port); err != nil {
			return err
		}
	}

	handle.setState(StateStarting)

	cmd := exec.CommandContext(s.ctx, rec.Script, rec.Args...)
	cmd.Dir = rec.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range rec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	setSysProcAttr(cmd)

	logFile, logErr := s.createLogFile(rec.Name)
	if logErr == nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		s.log.Warn().Str("name", rec.Name).Err(logErr).Msg("failed to create log file")
	}

	if err := cmd.Start(); err != nil {
		handle.setState(StateFailed)
		return orcherrors.SpawnFailed(rec.Name, err)
	}

	handle.mu.Lock()
	handle.cmd = cmd
	handle.pid = cmd.Process.Pid
	handle.startedAt = time.Now()
	handle.mu.Unlock()

	if err := s.writePidfile(rec.Name, cmd.Process.Pid); err != nil {
		s.log.Warn().Str("name", rec.Name).Err(err).Msg("failed to write pidfile")
	}

	go s.monitor(handle)

	s.log.Info().Str("name", rec.Name).Int("pid", cmd.Process.Pid).Msg("service started")
	return nil
}

func (s *Supervisor) ensurePortFree(port int) error {
	pid, inUse := procutil.CheckPortAvailability(port)
	if !inUse {
		return nil
	}
	if pid > 0 {
		procutil.KillProcess(pid, s.GraceTimeout, s.KillTimeout)
	}
	if stillPid, stillInUse := procutil.CheckPortAvailability(port); stillInUse {
		return orcherrors.PortBusy(port, stillPid)
	}
	return nil
}

// ReadyWait polls the app's probe URL until it returns 200 or the attempt
// budget is exhausted. Heavy backends get a larger default budget.
func (s *Supervisor) ReadyWait(name string, maxAttempts int, interval time.Duration) error {
	handle, err := s.get(name)
	if err != nil {
		return err
	}
	if handle.ProbeURL == "" {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultGenericAttempts
		if handle.Heavy {
			maxAttempts = defaultHeavyAttempts
		}
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	if procutil.ReadyWait(s.ctx, handle.ProbeURL, maxAttempts, interval) {
		handle.setState(StateReady)
		return nil
	}

	_ = s.Stop(name)
	return orcherrors.ReadyTimeout(name)
}

// Health evaluates the same probe on demand without blocking for readiness.
func (s *Supervisor) Health(name string) HealthStatus {
	handle, err := s.get(name)
	if err != nil || handle.ProbeURL == "" {
		return HealthUnknown
	}
	start := time.Now()
	res := procutil.HTTPProbe(s.ctx, handle.ProbeURL, 2*time.Second)
	metrics.ReadinessProbeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if res.OK() {
		return HealthHealthy
	}
	return HealthUnhealthy
}

// Stop gracefully then forcibly kills the named process and cleans up its
// pidfile.
func (s *Supervisor) Stop(name string) error {
	handle, err := s.get(name)
	if err != nil {
		return err
	}

	handle.setState(StateStopping)

	pid := handle.PID()
	if pid == 0 {
		pid = s.readPidfile(name)
	}
	if pid > 0 {
		procutil.KillProcess(pid, s.GraceTimeout, s.KillTimeout)
	}

	handle.mu.Lock()
	handle.cmd = nil
	handle.mu.Unlock()

	handle.setState(StateStopped)
	s.removePidfile(name)
	s.log.Info().Str("name", name).Msg("service stopped")
	return nil
}

// Restart stops then starts the named process.
func (s *Supervisor) Restart(name string) error {
	handle, err := s.get(name)
	if err != nil {
		return err
	}
	if err := s.Stop(name); err != nil {
		return err
	}
	metrics.ServiceRestartsTotal.WithLabelValues(name).Inc()
	return s.Start(handle.Record, handle.ProbeURL, handle.Heavy)
}

// StopAll stops every tracked service in LIFO start order, used during
// shutdown.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	s.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		if err := s.Stop(order[i]); err != nil {
			s.log.Warn().Str("name", order[i]).Err(err).Msg("failed to stop during teardown")
		}
	}
}

// StartedNames returns every service name the supervisor has attempted to
// start, in start order.
func (s *Supervisor) StartedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// StateOf returns the lifecycle state of a named service, StateNone if
// never registered.
func (s *Supervisor) StateOf(name string) State {
	handle, err := s.get(name)
	if err != nil {
		return StateNone
	}
	return handle.State()
}

func (s *Supervisor) get(name string) (*AppHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.apps[name]
	if !ok {
		return nil, orcherrors.NotFound("service", name)
	}
	return handle, nil
}

func (s *Supervisor) monitor(handle *AppHandle) {
	handle.mu.Lock()
	cmd := handle.cmd
	handle.mu.Unlock()
	if cmd == nil {
		return
	}

	err := cmd.Wait()

	handle.mu.Lock()
	state := handle.state
	handle.exitErr = err
	handle.mu.Unlock()

	if state == StateStopping || state == StateStopped {
		// Deliberate stop: Stop owns the transition to STOPPED.
		return
	}

	if state != StateRunning && state != StateReady {
		// Exited before passing readiness: FAILED per spec's state machine.
		handle.setState(StateFailed)
		s.log.Error().Str("name", handle.Record.Name).Err(err).Msg("service exited before ready")
		_ = s.Stop(handle.Record.Name)
		return
	}

	handle.setState(StateFailed)
	s.log.Warn().Str("name", handle.Record.Name).Err(err).Msg("service exited unexpectedly while running")
}

// MarkRunning transitions a READY service to RUNNING once readiness has
// passed and (for workers) the attach sleep has elapsed. Implicit per
// spec; exposed so the orchestrator can drive it explicitly for workers
// that have no HTTP probe at all.
func (s *Supervisor) MarkRunning(name string) error {
	handle, err := s.get(name)
	if err != nil {
		return err
	}
	current := handle.State()
	if current == StateRunning {
		return nil
	}
	if !CanTransition(current, StateRunning) {
		return orcherrors.Conflict("service", "cannot mark running from state "+string(current))
	}
	handle.setState(StateRunning)
	return nil
}

func (s *Supervisor) createLogFile(name string) (*os.File, error) {
	if err := os.MkdirAll(s.paths.LogDir(), 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(s.paths.LogDir(), name+".log")
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func (s *Supervisor) pidfilePath(name string) string {
	return filepath.Join(s.paths.PidDir(), name+".pid")
}

func (s *Supervisor) writePidfile(name string, pid int) error {
	if err := os.MkdirAll(s.paths.PidDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.pidfilePath(name), []byte(strconv.Itoa(pid)), 0644)
}

func (s *Supervisor) readPidfile(name string) int {
	data, err := os.ReadFile(s.pidfilePath(name))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

func (s *Supervisor) removePidfile(name string) {
	_ = os.Remove(s.pidfilePath(name))
}

// Shutdown cancels in-flight spawns and stops every service LIFO.
func (s *Supervisor) Shutdown() {
	s.StopAll()
	s.cancel()
}
