//go:build windows

package supervisor

import "os/exec"

// setSysProcAttr is a no-op on Windows; process group handling differs
// enough from Unix that no equivalent setup is attempted here.
func setSysProcAttr(_ *exec.Cmd) {}
