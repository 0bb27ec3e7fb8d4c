// Package structure resolves the WORKERS environment string, the service
// mapping, and the process descriptor into the immutable Structure that
// describes this machine's composition.
package structure

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gpufleet/orchestrator/internal/descriptor"
	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
	"github.com/gpufleet/orchestrator/internal/mapping"
)

// WorkerSpec is one "type:count" entry parsed from WORKERS.
type WorkerSpec struct {
	Type  string
	Count int
}

// WorkerDef is a materialized worker instance.
type WorkerDef struct {
	WorkerID        string                    `json:"worker_id"`
	PM2Name         string                    `json:"pm2_name"`
	Index           int                       `json:"index"`
	WorkerType      string                    `json:"worker_type"`
	ResourceBinding mapping.ResourceBinding   `json:"resource_binding"`
	Services        []string                  `json:"services"`
	Connectors      []string                  `json:"connectors,omitempty"`
}

// ServiceInstance is a materialized (worker, service) pairing.
type ServiceInstance struct {
	ServiceKey   string `json:"service_key"`
	WorkerID     string `json:"worker_id"`
	ServiceType  string `json:"service_type"`
	PM2Name      string `json:"pm2_name"`
	Port         int    `json:"port,omitempty"`
	ExpectedHost string `json:"expected_host"`
}

// Structure is the immutable catalog of workers, services, and
// capabilities for this machine. Once built it is read-only: the
// aggregator publishes it unchanged, and registration events add workers
// and services to the RuntimeStatus only, never to the Structure.
type Structure struct {
	GPUCount     int                         `json:"gpu_count"`
	Capabilities []string                    `json:"capabilities"`
	Workers      map[string]WorkerDef        `json:"workers"`
	Services     map[string]ServiceInstance  `json:"services"`
}

// ParseWorkers parses the WORKERS env string ("type:count,type:count,...").
func ParseWorkers(raw string) ([]WorkerSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, orcherrors.ErrMissingWorkers
	}

	var specs []WorkerSpec
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, orcherrors.BadRequest("malformed WORKERS entry: " + entry)
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || count < 1 {
			return nil, orcherrors.BadRequest("malformed WORKERS count in entry: " + entry)
		}
		specs = append(specs, WorkerSpec{Type: strings.TrimSpace(parts[0]), Count: count})
	}

	if len(specs) == 0 {
		return nil, orcherrors.ErrMissingWorkers
	}
	return specs, nil
}

// ServiceKey joins a worker ID and service name into a service_key.
func ServiceKey(workerID, serviceName string) string {
	return workerID + "." + serviceName
}

// Build resolves WORKERS + the service mapping + the descriptor into a
// Structure. It is deterministic: identical inputs produce a
// byte-identical Structure (map iteration order never leaks into the
// result: capabilities are sorted, Services follow the mapping's order and
// Connectors follow the descriptor's CONNECTORS order).
func Build(workersEnv string, tbl *mapping.Table, records []descriptor.AppRecord, defaultPortStart map[string]int) (*Structure, error) {
	specs, err := ParseWorkers(workersEnv)
	if err != nil {
		return nil, err
	}

	// Validate every requested type up front and accumulate capabilities.
	capSet := make(map[string]struct{})
	for _, spec := range specs {
		def, err := tbl.GetWorker(spec.Type)
		if err != nil {
			return nil, err
		}
		for _, jt := range tbl.JobTypesFor(def.Services) {
			capSet[jt] = struct{}{}
		}
	}

	// Index descriptor entries by worker type for deterministic pairing.
	workerEntries := make(map[string][]descriptor.AppRecord)
	var serviceEntries []descriptor.AppRecord
	for _, rec := range records {
		if wt, _, ok := descriptor.ParseWorkerName(rec.Name); ok {
			workerEntries[wt] = append(workerEntries[wt], rec)
			continue
		}
		serviceEntries = append(serviceEntries, rec)
	}
	for wt := range workerEntries {
		sort.Slice(workerEntries[wt], func(i, j int) bool {
			_, ai, _ := descriptor.ParseWorkerName(workerEntries[wt][i].Name)
			_, aj, _ := descriptor.ParseWorkerName(workerEntries[wt][j].Name)
			return ai < aj
		})
	}

	servicesByBaseAndIndex := make(map[string]descriptor.AppRecord)
	for _, rec := range serviceEntries {
		base, idx, ok := descriptor.ParseServiceName(rec.Name)
		if !ok {
			base, idx = rec.Name, 0
		}
		servicesByBaseAndIndex[base+"#"+strconv.Itoa(idx)] = rec
	}

	workers := make(map[string]WorkerDef)
	services := make(map[string]ServiceInstance)
	gpuCount := 1

	for _, spec := range specs {
		def, _ := tbl.GetWorker(spec.Type)
		entries := workerEntries[spec.Type]

		for idx := 0; idx < spec.Count; idx++ {
			var pm2Name string
			var connectors []string
			if idx < len(entries) {
				pm2Name = entries[idx].Name
				connectors = parseConnectors(entries[idx].Env)
			} else {
				// No descriptor entry: synthesize the conventional name so
				// callers (and the fallback builder) stay consistent.
				pm2Name = descriptor.WorkerNamePrefix + spec.Type + "-" + strconv.Itoa(idx)
			}

			workerID := spec.Type + "-" + strconv.Itoa(idx)
			// Mapping wins over any raw CONNECTORS value: Services is always
			// computed from the mapping, never from the descriptor's env.
			workers[workerID] = WorkerDef{
				WorkerID:        workerID,
				PM2Name:         pm2Name,
				Index:           idx,
				WorkerType:      spec.Type,
				ResourceBinding: def.ResourceBinding,
				Services:        append([]string(nil), def.Services...),
				Connectors:      connectors,
			}

			if def.ResourceBinding == mapping.BindingGPU || def.ResourceBinding == mapping.BindingMockGPU {
				if idx+1 > gpuCount {
					gpuCount = idx + 1
				}
			}

			for _, svcName := range def.Services {
				svcDef, _ := tbl.GetService(svcName)
				key := ServiceKey(workerID, svcName)

				port := resolvePort(svcDef, idx, servicesByBaseAndIndex, defaultPortStart)
				services[key] = ServiceInstance{
					ServiceKey:   key,
					WorkerID:     workerID,
					ServiceType:  svcName,
					PM2Name:      servicePM2Name(svcName, idx, servicesByBaseAndIndex),
					Port:         port,
					ExpectedHost: "localhost",
				}
			}
		}
	}

	caps := make([]string, 0, len(capSet))
	for c := range capSet {
		caps = append(caps, c)
	}
	sort.Strings(caps)

	return &Structure{
		GPUCount:     gpuCount,
		Capabilities: caps,
		Workers:      workers,
		Services:     services,
	}, nil
}

// BuildFromMappingOnly is the fallback variant for machines that declare
// WORKERS but carry no process descriptor. Every worker/service pair is
// synthesized from naming conventions and mapping base ports alone.
func BuildFromMappingOnly(workersEnv string, tbl *mapping.Table, defaultPortStart map[string]int) (*Structure, error) {
	return Build(workersEnv, tbl, nil, defaultPortStart)
}

func parseConnectors(env map[string]string) []string {
	raw, ok := env["CONNECTORS"]
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func servicePM2Name(svcName string, gpuIndex int, index map[string]descriptor.AppRecord) string {
	if rec, ok := index[svcName+"#"+strconv.Itoa(gpuIndex)]; ok {
		return rec.Name
	}
	return svcName + "-gpu" + strconv.Itoa(gpuIndex)
}

func resolvePort(svcDef mapping.ServiceDef, gpuIndex int, index map[string]descriptor.AppRecord, defaultPortStart map[string]int) int {
	if rec, ok := index[svcDef.Name+"#"+strconv.Itoa(gpuIndex)]; ok {
		if p, ok := descriptor.PortFromArgs(rec.Args); ok {
			return p
		}
		if p, ok := descriptor.PortFromEnv(rec.Env, strings.ToUpper(svcDef.Name)+"_PORT"); ok {
			return p
		}
	}
	base := svcDef.BasePort
	if defaultPortStart != nil {
		if override, ok := defaultPortStart[svcDef.Name]; ok {
			base = override
		}
	}
	return base + gpuIndex
}
