package procutil

import (
	"os"
	"time"
)

// Default grace/kill windows, overridable by the supervisor's config.
const (
	DefaultGraceTimeout = 3 * time.Second
	DefaultKillTimeout  = 1 * time.Second
)

// KillProcess sends a graceful termination signal to pid, waits up to
// graceTimeout for it to exit, then sends SIGKILL and waits up to
// killTimeout. Returns true if the process was confirmed gone.
func KillProcess(pid int, graceTimeout, killTimeout time.Duration) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}

	_ = sendTermSignal(proc)
	if waitGone(pid, graceTimeout) {
		return true
	}

	_ = proc.Kill()
	return waitGone(pid, killTimeout)
}

func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !IsProcessRunning(pid)
}
