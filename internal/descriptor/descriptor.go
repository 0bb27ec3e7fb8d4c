// Package descriptor loads the generated process-ecosystem descriptor: the
// on-disk enumeration of every backend service and worker process a machine
// must run. The loader is a pure parser — it never executes or evaluates
// the descriptor, only unmarshals it into a fixed shape.
package descriptor

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"

	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
)

// AppRecord is a single process entry in the descriptor.
type AppRecord struct {
	Name       string            `json:"name"`
	Script     string            `json:"script"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"cwd,omitempty"`
}

// WorkerNamePrefix is the contractual prefix for worker process names.
const WorkerNamePrefix = "redis-worker-"

var (
	// workerNameRe matches redis-worker-<type>-<index>
	workerNameRe = regexp.MustCompile(`^redis-worker-(.+)-(\d+)$`)
	// serviceNameRe matches <service>-gpu<N>
	serviceNameRe = regexp.MustCompile(`^(.+)-gpu(\d+)$`)
)

// Load reads and parses the descriptor file at path.
// It fails with a DescriptorMissing-flavored error if the file is absent,
// and a DescriptorMalformed-flavored error if parsing fails.
func Load(path string) ([]AppRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.ErrDescriptorMissing
		}
		return nil, orcherrors.Wrap(err, "reading descriptor file")
	}
	return Parse(data)
}

// Parse decodes descriptor JSON into AppRecords. Exposed separately from
// Load so callers (and tests) can feed inline descriptors without a file.
func Parse(data []byte) ([]AppRecord, error) {
	var records []AppRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, orcherrors.DescriptorMalformed(err)
	}
	for i, r := range records {
		if strings.TrimSpace(r.Name) == "" {
			return nil, orcherrors.DescriptorMalformed(nil).WithDetail("index", i)
		}
	}
	return records, nil
}

// IsWorkerName reports whether name follows the redis-worker-<type>-<index>
// convention.
func IsWorkerName(name string) bool {
	return workerNameRe.MatchString(name)
}

// ParseWorkerName splits a worker process name into its worker type and
// index. ok is false if name does not follow the convention.
func ParseWorkerName(name string) (workerType string, index int, ok bool) {
	m := workerNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], idx, true
}

// ParseServiceName splits a backend-service process name into the service
// base name and its GPU index, per the "<service>-gpu<N>" convention.
// ok is false if name carries no GPU-index suffix (e.g. a shared/cpu
// service, which is its own base name with index 0).
func ParseServiceName(name string) (base string, gpuIndex int, ok bool) {
	m := serviceNameRe.FindStringSubmatch(name)
	if m == nil {
		return name, 0, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return name, 0, false
	}
	return m[1], idx, true
}

// PortFromArgs extracts a declared port from "--port=N" style arguments.
func PortFromArgs(args []string) (int, bool) {
	const prefix = "--port="
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			if p, err := strconv.Atoi(strings.TrimPrefix(a, prefix)); err == nil {
				return p, true
			}
		}
	}
	return 0, false
}

// PortFromEnv extracts a declared port from a "<SERVICE>_PORT" style
// environment entry given the expected key.
func PortFromEnv(env map[string]string, key string) (int, bool) {
	v, exists := env[key]
	if !exists {
		return 0, false
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return p, true
}
