//go:build windows

package session

import (
	"errors"
	"os/exec"
)

func (s *Session) startPTY(cmd *exec.Cmd) error {
	return errors.New("pty sessions are not supported on windows")
}
