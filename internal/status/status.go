// Package status defines the RuntimeStatus document the aggregator
// maintains for this machine, and the tagged event variants that mutate
// it. No duck typing: every event kind is its own Go type, dispatched by
// a single reducer switch.
package status

// MachinePhase is the machine's overall lifecycle phase. Monotone:
// starting -> ready -> shutdown.
type MachinePhase string

const (
	PhaseStarting MachinePhase = "starting"
	PhaseReady    MachinePhase = "ready"
	PhaseShutdown MachinePhase = "shutdown"
)

// WorkerStatus is a worker's job-processing state.
type WorkerStatus string

const (
	WorkerUnknown      WorkerStatus = "unknown"
	WorkerInitializing WorkerStatus = "initializing"
	WorkerIdle         WorkerStatus = "idle"
	WorkerBusy         WorkerStatus = "busy"
	WorkerOffline      WorkerStatus = "offline"
)

// ServiceStatus is a service's activity state, derived from whether a
// worker currently has it bound to a job.
type ServiceStatus string

const (
	ServiceUnknown  ServiceStatus = "unknown"
	ServiceActive   ServiceStatus = "active"
	ServiceInactive ServiceStatus = "inactive"
)

// Health is the outcome of the last HTTP health probe.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// PM2Status mirrors the supervised process's observed run state in the
// process table (named pm2_status for continuity with the upstream
// fleet's process-manager vocabulary).
type PM2Status string

const (
	PM2Unknown  PM2Status = "unknown"
	PM2Online   PM2Status = "online"
	PM2Stopped  PM2Status = "stopped"
	PM2Errored  PM2Status = "errored"
	PM2NotFound PM2Status = "not_found"
)

// Machine carries the machine-wide phase and uptime.
type Machine struct {
	Phase     MachinePhase `json:"phase"`
	UptimeMS  int64        `json:"uptime_ms"`
}

// WorkerState is the runtime view of a single worker.
type WorkerState struct {
	IsConnected    bool         `json:"is_connected"`
	Status         WorkerStatus `json:"status"`
	CurrentJobID   *string      `json:"current_job_id,omitempty"`
	LastActivityMS int64        `json:"last_activity_ms"`
	Version        string       `json:"version,omitempty"`
	BuildInfo      string       `json:"build_info,omitempty"`
}

// ServiceState is the runtime view of a single service instance.
type ServiceState struct {
	Status    ServiceStatus `json:"status"`
	Health    Health        `json:"health"`
	PM2Status PM2Status     `json:"pm2_status"`
	Port      int           `json:"port,omitempty"`
}

// RuntimeStatus is the authoritative live view of this machine's
// composition and health, mutated only by the aggregator's reducer.
type RuntimeStatus struct {
	Machine  Machine                 `json:"machine"`
	Workers  map[string]WorkerState  `json:"workers"`
	Services map[string]ServiceState `json:"services"`
}

// New returns an empty RuntimeStatus with phase=starting.
func New() *RuntimeStatus {
	return &RuntimeStatus{
		Machine:  Machine{Phase: PhaseStarting},
		Workers:  make(map[string]WorkerState),
		Services: make(map[string]ServiceState),
	}
}

// Clone returns a deep-enough copy for safe publication: the maps are
// copied so a concurrent reducer mutation cannot race with a reader that
// is marshalling a previously returned snapshot.
func (s *RuntimeStatus) Clone() *RuntimeStatus {
	out := &RuntimeStatus{
		Machine:  s.Machine,
		Workers:  make(map[string]WorkerState, len(s.Workers)),
		Services: make(map[string]ServiceState, len(s.Services)),
	}
	for k, v := range s.Workers {
		out.Workers[k] = v
	}
	for k, v := range s.Services {
		out.Services[k] = v
	}
	return out
}
