//go:build windows

package session

import (
	"os"
	"os/exec"
)

func setSysProcAttr(cmd *exec.Cmd) {}

// Windows has no cooperative termination signal for console children; both
// the stop request and the kill escalate to Process.Kill.
func terminateProcess(pid int) error {
	return killProcess(pid)
}

func killProcess(pid int) error {
	if pid <= 0 {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return process.Kill()
}
