// Package platform provides cross-platform path resolution for the orchestrator daemon.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
)

// Paths provides the on-disk layout for the orchestrator's own bookkeeping
// (pidfiles, per-service logs, structure cache). It never stores backend
// or worker application data.
type Paths struct {
	configDir string
	stateDir  string
	userDir   string
}

// DefaultPaths returns the default paths for the current platform.
// All paths live under the user directory (~/.orchd) unless overridden by
// GGOD_CONFIG_DIR / GGOD_STATE_DIR.
func DefaultPaths() *Paths {
	p := &Paths{}
	p.userDir = p.defaultUserDir()
	p.configDir = p.defaultConfigDir()
	p.stateDir = p.defaultStateDir()
	return p
}

// ConfigDir returns the configuration directory.
func (p *Paths) ConfigDir() string { return p.configDir }

// StateDir returns the state directory for runtime data (pidfiles, logs).
func (p *Paths) StateDir() string { return p.stateDir }

// UserDir returns the user-specific root directory.
func (p *Paths) UserDir() string { return p.userDir }

// PidDir returns the directory holding per-service pidfiles.
func (p *Paths) PidDir() string {
	return filepath.Join(p.stateDir, "pids")
}

// LogDir returns the directory holding per-service stdout/stderr logs.
func (p *Paths) LogDir() string {
	return filepath.Join(p.stateDir, "logs")
}

// StructureCachePath returns the path used to persist the last-built
// Structure for diagnostic purposes.
func (p *Paths) StructureCachePath() string {
	return filepath.Join(p.stateDir, "structure.json")
}

func (p *Paths) defaultConfigDir() string {
	if dir := os.Getenv("GGOD_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(p.userDir, "config")
}

func (p *Paths) defaultStateDir() string {
	if dir := os.Getenv("GGOD_STATE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(p.userDir, "state")
}

func (p *Paths) defaultUserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		switch runtime.GOOS {
		case osWindows:
			return `C:\Users\Default\.orchd`
		default:
			return "/tmp/.orchd"
		}
	}
	return filepath.Join(home, ".orchd")
}

// WithConfigDir returns a new Paths with a custom config directory.
func (p *Paths) WithConfigDir(dir string) *Paths {
	return &Paths{configDir: dir, stateDir: p.stateDir, userDir: p.userDir}
}

// WithStateDir returns a new Paths with a custom state directory.
func (p *Paths) WithStateDir(dir string) *Paths {
	return &Paths{configDir: p.configDir, stateDir: dir, userDir: p.userDir}
}

// EnsureAllDirs creates every directory this process writes to.
func (p *Paths) EnsureAllDirs() error {
	for _, dir := range []string{p.configDir, p.stateDir, p.PidDir(), p.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// IsWindows returns true if running on Windows.
func IsWindows() bool { return runtime.GOOS == osWindows }

// IsDarwin returns true if running on macOS.
func IsDarwin() bool { return runtime.GOOS == osDarwin }
