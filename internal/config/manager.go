package config

import (
	"github.com/gpufleet/orchestrator/internal/platform"
	"github.com/gpufleet/orchestrator/internal/structure"
	"github.com/gpufleet/orchestrator/internal/utils"
)

// Manager persists the last successfully built Structure to disk for
// operator diagnostics (e.g. comparing a restart's derived layout against
// the previous run). It is never read back into the startup path itself;
// structure.Build is always authoritative.
type Manager struct {
	paths *platform.Paths
}

// NewManager builds a Manager rooted at paths.
func NewManager(paths *platform.Paths) *Manager {
	return &Manager{paths: paths}
}

// SaveStructure writes st atomically (write-temp, then rename) so a crash
// mid-write never leaves a truncated cache file behind.
func (m *Manager) SaveStructure(st *structure.Structure) error {
	return utils.SaveJSON(m.paths.StructureCachePath(), st, 0644)
}

// LoadStructure reads the last cached Structure, nil if none exists yet.
func (m *Manager) LoadStructure() (*structure.Structure, error) {
	return utils.LoadJSON[structure.Structure](m.paths.StructureCachePath())
}
