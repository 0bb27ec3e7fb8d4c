// Package mapping is the bundled, static service-mapping table: the single
// source of truth for which backend services (and therefore which job
// capabilities) a worker type advertises.
package mapping

import (
	"sort"

	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
)

// ResourceBinding describes how a service consumes machine resources.
type ResourceBinding string

const (
	BindingGPU      ResourceBinding = "gpu"
	BindingMockGPU  ResourceBinding = "mock_gpu"
	BindingShared   ResourceBinding = "shared"
	BindingCPU      ResourceBinding = "cpu"
)

// ServiceDef describes one backend service family.
type ServiceDef struct {
	Name             string
	JobTypes         []string
	ResourceBinding  ResourceBinding
	BasePort         int
}

// WorkerTypeDef describes one worker type: the services it pairs with and
// the resource binding it requires.
type WorkerTypeDef struct {
	Type            string
	Services        []string
	ResourceBinding ResourceBinding
}

// Table is the service-mapping lookup surface.
type Table struct {
	workers  map[string]WorkerTypeDef
	services map[string]ServiceDef
}

// Default is the bundled mapping shipped with the orchestrator.
var Default = New()

// New builds the bundled static mapping. It is not meant to be
// reconfigured at runtime: the mapping is a compiled-in contract between
// the orchestrator and the worker/service binaries it supervises.
func New() *Table {
	services := []ServiceDef{
		{
			Name:            "comfyui",
			JobTypes:        []string{"image_generation", "image_to_image"},
			ResourceBinding: BindingGPU,
			BasePort:        8188,
		},
		{
			Name:            "a1111",
			JobTypes:        []string{"image_generation"},
			ResourceBinding: BindingGPU,
			BasePort:        7860,
		},
		{
			Name:            "ollama",
			JobTypes:        []string{"text_generation", "embedding"},
			ResourceBinding: BindingMockGPU,
			BasePort:        11434,
		},
		{
			Name:            "simulation",
			JobTypes:        []string{"simulation"},
			ResourceBinding: BindingCPU,
			BasePort:        8299,
		},
	}

	workers := []WorkerTypeDef{
		{Type: "comfyui", Services: []string{"comfyui"}, ResourceBinding: BindingGPU},
		{Type: "a1111", Services: []string{"a1111"}, ResourceBinding: BindingGPU},
		{Type: "ollama", Services: []string{"ollama"}, ResourceBinding: BindingMockGPU},
		{Type: "simulation", Services: []string{"simulation"}, ResourceBinding: BindingCPU},
	}

	t := &Table{
		workers:  make(map[string]WorkerTypeDef, len(workers)),
		services: make(map[string]ServiceDef, len(services)),
	}
	for _, s := range services {
		t.services[s.Name] = s
	}
	for _, w := range workers {
		t.workers[w.Type] = w
	}
	return t
}

// GetWorker resolves a worker type to its mapping entry.
func (t *Table) GetWorker(workerType string) (WorkerTypeDef, error) {
	def, ok := t.workers[workerType]
	if !ok {
		return WorkerTypeDef{}, orcherrors.UnknownWorkerType(workerType, t.KnownWorkerTypes())
	}
	return def, nil
}

// GetService resolves a service name to its mapping entry.
func (t *Table) GetService(name string) (ServiceDef, bool) {
	def, ok := t.services[name]
	return def, ok
}

// JobTypesFor returns the union of job types advertised by the given
// service names.
func (t *Table) JobTypesFor(serviceNames []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range serviceNames {
		def, ok := t.services[name]
		if !ok {
			continue
		}
		for _, jt := range def.JobTypes {
			if _, dup := seen[jt]; dup {
				continue
			}
			seen[jt] = struct{}{}
			out = append(out, jt)
		}
	}
	sort.Strings(out)
	return out
}

// KnownWorkerTypes returns every worker type the mapping recognizes, sorted.
func (t *Table) KnownWorkerTypes() []string {
	out := make([]string, 0, len(t.workers))
	for wt := range t.workers {
		out = append(out, wt)
	}
	sort.Strings(out)
	return out
}
