//go:build !windows

package session

import (
	"errors"
	"os/exec"
	"syscall"
)

// The child gets its own process group so stop and kill signals reach any
// grandchildren it spawned.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminateProcess(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func killProcess(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	target := pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		target = -pgid
	}
	err := syscall.Kill(target, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
