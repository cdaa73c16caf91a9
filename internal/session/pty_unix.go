//go:build !windows

package session

import (
	"os/exec"

	"github.com/creack/pty"
)

// startPTY runs the child under a pseudo-terminal for fully interactive
// programs. The PTY merges stdout and stderr into one stream, tagged stdout.
// pty.Start applies setsid, which already makes the child its own process
// group leader, so group-wide signaling works without Setpgid.
func (s *Session) startPTY(cmd *exec.Cmd) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}

	s.stdin = ptmx
	s.readers.Add(1)
	go s.readStream(StreamStdout, ptmx)
	return nil
}
