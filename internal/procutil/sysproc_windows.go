//go:build windows

package procutil

import (
	"os"
)

// sendTermSignal sends os.Interrupt, the closest Windows equivalent to
// SIGTERM; process groups are handled differently there.
func sendTermSignal(process *os.Process) error {
	return process.Signal(os.Interrupt)
}

// IsProcessRunning reports whether pid refers to a live process.
// os.FindProcess always succeeds on Windows (no signal-0 probe exists),
// so liveness is confirmed by attempting a zero-effect interrupt.
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(os.Interrupt) == nil
}
