package status

// ProcessEntry is one row the supervisor's process table reports for a
// periodic poll: the observed run state of a single pm2_name.
type ProcessEntry struct {
	PM2Name string
	Running bool
}

// ServiceProbe names, for one service_key, the pm2_name to reconcile
// against the process table and the health already observed by an HTTP
// probe (HealthUnknown if the service has none, e.g. a shared binding).
type ServiceProbe struct {
	ServiceKey string
	PM2Name    string
	Port       int
	Health     Health
}

// WorkerProbe names, for one worker_id, the pm2_name to reconcile against
// the process table.
type WorkerProbe struct {
	WorkerID string
	PM2Name  string
}

// ReconcilePoll applies one periodic-poll pass: process-table-derived
// pm2_status/is_connected plus the HTTP health already probed by the
// caller. It never removes an entry — only the structure layer grows the
// known set; poll only patches what already exists or what the probe
// lists name explicitly.
func ReconcilePoll(s *RuntimeStatus, table []ProcessEntry, services []ServiceProbe, workers []WorkerProbe) {
	running := make(map[string]bool, len(table))
	for _, row := range table {
		running[row.PM2Name] = row.Running
	}

	for _, sp := range services {
		svc, exists := s.Services[sp.ServiceKey]
		if !exists {
			svc = ServiceState{}
		}
		isRunning, known := running[sp.PM2Name]
		switch {
		case !known:
			svc.PM2Status = PM2NotFound
			svc.Status = ServiceInactive
		case isRunning:
			svc.PM2Status = PM2Online
			if svc.Status == "" || svc.Status == ServiceUnknown {
				svc.Status = ServiceActive
			}
		default:
			svc.PM2Status = PM2Stopped
			svc.Status = ServiceInactive
		}

		if sp.Port > 0 {
			svc.Port = sp.Port
		}
		if sp.Health != "" && sp.Health != HealthUnknown {
			svc.Health = sp.Health
		} else if svc.Health == "" || svc.Health == HealthUnknown {
			// Shared-binding services carry no HTTP probe: inherit health
			// from pm2_status per the spec's reconciliation rule.
			if svc.PM2Status == PM2Online {
				svc.Health = HealthHealthy
			}
		}
		s.Services[sp.ServiceKey] = svc
	}

	for _, wp := range workers {
		w, exists := s.Workers[wp.WorkerID]
		if !exists {
			w = WorkerState{}
		}
		isRunning := running[wp.PM2Name]
		w.IsConnected = isRunning
		if w.Status == "" || w.Status == WorkerUnknown {
			if isRunning {
				w.Status = WorkerIdle
			} else {
				w.Status = WorkerOffline
			}
		}
		s.Workers[wp.WorkerID] = w
	}
}
