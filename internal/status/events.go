package status

import (
	"encoding/json"
	"fmt"
)

// EventKind tags the shape of Data in a raw Event.
type EventKind string

const (
	EventWorkerRegistered     EventKind = "worker_registered"
	EventWorkerConnected      EventKind = "worker_connected"
	EventWorkerStatusChanged  EventKind = "worker_status_changed"
	EventConnectorChanged     EventKind = "connector_status_changed"
	EventJobStarted           EventKind = "job_started"
	EventJobCompleted         EventKind = "job_completed"
	EventJobFailed            EventKind = "job_failed"
)

// Event is the envelope delivered on the worker pub/sub channel:
// {worker_id, kind, data}. Data is kind-specific and decoded by the
// matching Parse* method into one of the typed payloads below.
type Event struct {
	WorkerID string          `json:"worker_id"`
	Kind     EventKind       `json:"kind"`
	Data     json.RawMessage `json:"data"`
}

// WorkerRegisteredData is the payload for worker_registered/worker_connected.
type WorkerRegisteredData struct {
	Status       WorkerStatus `json:"status"`
	Capabilities []string     `json:"capabilities"`
	Version      string       `json:"version,omitempty"`
	BuildInfo    string       `json:"build_info,omitempty"`
}

// WorkerStatusChangedData is the payload for worker_status_changed.
type WorkerStatusChangedData struct {
	Status       WorkerStatus `json:"status"`
	CurrentJobID *string      `json:"current_job_id,omitempty"`
	IsConnected  bool         `json:"is_connected"`
	Version      string       `json:"version,omitempty"`
	BuildInfo    string       `json:"build_info,omitempty"`
}

// ConnectorStatusChangedData is the payload for connector_status_changed.
type ConnectorStatusChangedData struct {
	ServiceType string  `json:"service_type"`
	Status      ServiceStatus `json:"status"`
	Health      Health  `json:"health,omitempty"`
}

// JobStartedData is the payload for job_started.
type JobStartedData struct {
	JobID       string `json:"job_id"`
	ServiceType string `json:"service_type"`
}

// JobEndedData is the payload for job_completed/job_failed.
type JobEndedData struct {
	JobID       string `json:"job_id"`
	ServiceType string `json:"service_type"`
}

// ParseWorkerRegistered decodes e.Data as WorkerRegisteredData.
func (e Event) ParseWorkerRegistered() (WorkerRegisteredData, error) {
	var d WorkerRegisteredData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ParseWorkerStatusChanged decodes e.Data as WorkerStatusChangedData.
func (e Event) ParseWorkerStatusChanged() (WorkerStatusChangedData, error) {
	var d WorkerStatusChangedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ParseConnectorStatusChanged decodes e.Data as ConnectorStatusChangedData.
func (e Event) ParseConnectorStatusChanged() (ConnectorStatusChangedData, error) {
	var d ConnectorStatusChangedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ParseJobStarted decodes e.Data as JobStartedData.
func (e Event) ParseJobStarted() (JobStartedData, error) {
	var d JobStartedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ParseJobEnded decodes e.Data as JobEndedData.
func (e Event) ParseJobEnded() (JobEndedData, error) {
	var d JobEndedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ParseEvent decodes a raw pub/sub payload into an Event envelope.
func ParseEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("malformed event payload: %w", err)
	}
	if e.WorkerID == "" {
		return Event{}, fmt.Errorf("malformed event payload: missing worker_id")
	}
	return e, nil
}
