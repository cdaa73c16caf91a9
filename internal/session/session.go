package session

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mastershell/internal/config"
	"mastershell/internal/logging"
)

const maxLineBytes = 1024 * 1024

type State uint32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "running"
	}
}

// Session owns one supervised child process: its stdin endpoint, one reader
// goroutine per output stream, and the lifecycle state machine
// starting -> running -> stopping -> terminated, with running -> terminated
// on unexpected exit.
type Session struct {
	Name      string
	StartedAt time.Time

	spec      config.LaunchSpec
	publisher Publisher
	logger    *logging.Logger

	cmd *exec.Cmd
	pid int

	inputMu sync.Mutex
	stdin   io.WriteCloser

	state         atomic.Uint32
	stopRequested atomic.Bool
	killOnce      sync.Once

	readers  sync.WaitGroup
	done     chan struct{}
	exitCode atomic.Int32
	exited   atomic.Bool
}

// Start spawns the child described by spec and begins streaming its output to
// the publisher. A launch failure is returned as a *SpawnError and leaves no
// process behind.
func Start(spec config.LaunchSpec, publisher Publisher, logger *logging.Logger) (*Session, error) {
	if publisher == nil {
		return nil, &SpawnError{Name: spec.Name, Err: fmt.Errorf("no output publisher")}
	}

	s := &Session{
		Name:      spec.Name,
		spec:      spec,
		publisher: publisher,
		logger:    logger,
		done:      make(chan struct{}),
	}
	s.state.Store(uint32(StateStarting))

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir

	if spec.PTY {
		if err := s.startPTY(cmd); err != nil {
			return nil, &SpawnError{Name: spec.Name, Err: err}
		}
	} else {
		if err := s.startPiped(cmd); err != nil {
			return nil, &SpawnError{Name: spec.Name, Err: err}
		}
	}

	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.StartedAt = time.Now().UTC()
	s.state.Store(uint32(StateRunning))

	go s.reap()

	if s.logger != nil {
		s.logger.Debug("session spawned", map[string]string{
			"session": s.Name,
			"pid":     strconv.Itoa(s.pid),
			"command": spec.Command,
		})
	}
	return s, nil
}

func (s *Session) startPiped(cmd *exec.Cmd) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	setSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}

	s.stdin = stdin
	s.readers.Add(2)
	go s.readStream(StreamStdout, stdout)
	go s.readStream(StreamStderr, stderr)
	return nil
}

func (s *Session) reap() {
	s.readers.Wait()
	err := s.cmd.Wait()

	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err == nil {
		code = s.cmd.ProcessState.ExitCode()
	} else {
		code = -1
	}
	s.exitCode.Store(int32(code))
	s.exited.Store(true)

	s.inputMu.Lock()
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	s.inputMu.Unlock()

	s.state.Store(uint32(StateTerminated))
	close(s.done)

	if s.logger != nil {
		s.logger.Debug("session reaped", map[string]string{
			"session":   s.Name,
			"exit_code": strconv.Itoa(code),
		})
	}
}

func (s *Session) readStream(kind StreamKind, r io.Reader) {
	defer s.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var seq uint64
	for scanner.Scan() {
		seq++
		s.publisher.Publish(OutputLine{
			Session: s.Name,
			Stream:  kind,
			Text:    scanner.Text(),
			Seq:     seq,
			At:      time.Now().UTC(),
		})
	}
	// Closed pipes and PTY EIO both surface here; either way the stream is
	// done and reap() takes over.
	if err := scanner.Err(); err != nil && s.logger != nil {
		s.logger.Debug("session stream closed", map[string]string{
			"session": s.Name,
			"stream":  string(kind),
			"error":   err.Error(),
		})
	}
}

// Send writes payload plus a line terminator to the child's stdin. It fails
// with ErrSessionClosed unless the session is running, and never waits for a
// reply.
func (s *Session) Send(payload string) error {
	if s == nil {
		return ErrSessionClosed
	}
	if s.State() != StateRunning {
		return fmt.Errorf("session %q: %w", s.Name, ErrSessionClosed)
	}

	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if s.stdin == nil {
		return fmt.Errorf("session %q: %w", s.Name, ErrSessionClosed)
	}
	if _, err := io.WriteString(s.stdin, payload+"\n"); err != nil {
		return fmt.Errorf("session %q: %w", s.Name, ErrSessionClosed)
	}
	return nil
}

// RequestStop asks the child to terminate cooperatively. Idempotent; a no-op
// unless the session is currently running.
func (s *Session) RequestStop() {
	if s == nil {
		return
	}
	if !s.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping)) {
		return
	}
	s.stopRequested.Store(true)
	if err := terminateProcess(s.pid); err != nil && s.logger != nil {
		s.logger.Warn("cooperative stop failed", map[string]string{
			"session": s.Name,
			"error":   err.Error(),
		})
	}
}

// ForceKill terminates the child regardless of state. Best-effort: the caller
// never sees a failure, and the session ends up terminated once the process
// is reaped.
func (s *Session) ForceKill() {
	if s == nil {
		return
	}
	s.killOnce.Do(func() {
		s.stopRequested.Store(true)
		_ = killProcess(s.pid)
	})
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has reached terminated: all output streams
// at EOF and the process reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// StopRequested reports whether termination was asked for; a terminated
// session without it is an unexpected exit.
func (s *Session) StopRequested() bool {
	return s.stopRequested.Load()
}

func (s *Session) Pid() int {
	return s.pid
}

// ExitCode returns the child's exit code once it has terminated.
func (s *Session) ExitCode() (int, bool) {
	if !s.exited.Load() {
		return 0, false
	}
	return int(s.exitCode.Load()), true
}

// Info is a read-only snapshot for listings.
type Info struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Pid       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

func (s *Session) Info() Info {
	return Info{
		Name:      s.Name,
		State:     s.State().String(),
		Pid:       s.pid,
		StartedAt: s.StartedAt,
	}
}
