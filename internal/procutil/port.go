// Package procutil provides port/PID detection, graceful-then-forced
// process termination, and HTTP readiness probing shared by the
// supervisor and the status aggregator.
package procutil

import (
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
)

// IsPortInUse attempts a local bind on 0.0.0.0:port; if the bind fails the
// port is considered in use.
func IsPortInUse(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

// FindPIDByPort resolves the PID of the process currently listening on
// port, using lsof. Returns 0 if the PID cannot be resolved (the port may
// still be in use).
func FindPIDByPort(port int) int {
	cmd := exec.Command("lsof", "-i", fmt.Sprintf(":%d", port), "-t")
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0
	}
	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		return 0
	}
	return pid
}

// CheckPortAvailability is a convenience wrapper returning the owning PID
// (if resolvable, else 0) and true when the port is occupied, and 0, false
// when it is free.
func CheckPortAvailability(port int) (pid int, inUse bool) {
	if !IsPortInUse(port) {
		return 0, false
	}
	return FindPIDByPort(port), true
}
