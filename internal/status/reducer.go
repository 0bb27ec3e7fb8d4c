package status

// ApplyEvent mutates s in place per the event grammar in one idempotent
// step: applying the same event twice leaves s unchanged the second time.
// now is the caller-supplied wall clock in epoch milliseconds, so the
// reducer itself stays free of time-reading side effects and is trivial
// to test deterministically.
func ApplyEvent(s *RuntimeStatus, e Event, now int64) error {
	switch e.Kind {
	case EventWorkerRegistered, EventWorkerConnected:
		return applyWorkerRegistered(s, e, now)
	case EventWorkerStatusChanged:
		return applyWorkerStatusChanged(s, e, now)
	case EventConnectorChanged:
		return applyConnectorStatusChanged(s, e)
	case EventJobStarted:
		return applyJobStarted(s, e, now)
	case EventJobCompleted, EventJobFailed:
		return applyJobEnded(s, e, now)
	default:
		return nil
	}
}

func applyWorkerRegistered(s *RuntimeStatus, e Event, now int64) error {
	d, err := e.ParseWorkerRegistered()
	if err != nil {
		return err
	}
	s.Workers[e.WorkerID] = WorkerState{
		IsConnected:    true,
		Status:         d.Status,
		LastActivityMS: now,
		Version:        d.Version,
		BuildInfo:      d.BuildInfo,
	}
	for _, capability := range d.Capabilities {
		key := ServiceKey(e.WorkerID, capability)
		if _, exists := s.Services[key]; !exists {
			s.Services[key] = ServiceState{Status: ServiceUnknown, Health: HealthUnknown, PM2Status: PM2Unknown}
		}
	}
	return nil
}

func applyWorkerStatusChanged(s *RuntimeStatus, e Event, now int64) error {
	d, err := e.ParseWorkerStatusChanged()
	if err != nil {
		return err
	}
	w, exists := s.Workers[e.WorkerID]
	if !exists {
		// Synthesize a worker_registered with empty capabilities first,
		// per the spec's event-before-registration scenario.
		w = WorkerState{}
	}
	w.IsConnected = d.IsConnected
	w.Status = d.Status
	w.CurrentJobID = d.CurrentJobID
	w.LastActivityMS = now
	if d.Version != "" {
		w.Version = d.Version
	}
	if d.BuildInfo != "" {
		w.BuildInfo = d.BuildInfo
	}
	s.Workers[e.WorkerID] = w
	return nil
}

func applyConnectorStatusChanged(s *RuntimeStatus, e Event) error {
	d, err := e.ParseConnectorStatusChanged()
	if err != nil {
		return err
	}
	key := ServiceKey(e.WorkerID, d.ServiceType)
	svc, exists := s.Services[key]
	if !exists {
		svc = ServiceState{PM2Status: PM2Unknown}
	}
	svc.Status = d.Status
	if d.Health != "" {
		svc.Health = d.Health
	}
	s.Services[key] = svc
	return nil
}

func applyJobStarted(s *RuntimeStatus, e Event, now int64) error {
	d, err := e.ParseJobStarted()
	if err != nil {
		return err
	}
	w, exists := s.Workers[e.WorkerID]
	if !exists {
		w = WorkerState{}
	}
	jobID := d.JobID
	w.Status = WorkerBusy
	w.CurrentJobID = &jobID
	w.LastActivityMS = now
	s.Workers[e.WorkerID] = w

	key := ServiceKey(e.WorkerID, d.ServiceType)
	svc, exists := s.Services[key]
	if !exists {
		svc = ServiceState{Health: HealthUnknown, PM2Status: PM2Unknown}
	}
	svc.Status = ServiceActive
	s.Services[key] = svc
	return nil
}

func applyJobEnded(s *RuntimeStatus, e Event, now int64) error {
	d, err := e.ParseJobEnded()
	if err != nil {
		return err
	}
	w, exists := s.Workers[e.WorkerID]
	if !exists {
		w = WorkerState{}
	}
	w.Status = WorkerIdle
	w.CurrentJobID = nil
	w.LastActivityMS = now
	s.Workers[e.WorkerID] = w

	key := ServiceKey(e.WorkerID, d.ServiceType)
	svc, exists := s.Services[key]
	if !exists {
		svc = ServiceState{Health: HealthUnknown, PM2Status: PM2Unknown}
	}
	svc.Status = ServiceInactive
	s.Services[key] = svc
	return nil
}

// ServiceKey joins a worker ID and a capability/service name into the
// service_key used as the map key in RuntimeStatus.Services, matching
// structure.ServiceKey's convention without importing the structure
// package (status must stay below it in the dependency graph).
func ServiceKey(workerID, serviceName string) string {
	return workerID + "." + serviceName
}
