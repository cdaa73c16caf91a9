package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mastershell/internal/config"
	"mastershell/internal/console"
	"mastershell/internal/event"
	"mastershell/internal/logging"
	"mastershell/internal/session"
)

// ErrUnknownSession is returned when an operator addresses a name with no
// matching live or registered session.
var ErrUnknownSession = errors.New("unknown session")

// ErrNoSessions is returned by Start when not a single configured session
// could be spawned.
var ErrNoSessions = errors.New("no sessions could be started")

type Options struct {
	Registry    *config.Registry
	Aggregator  *console.Aggregator
	Logger      *logging.Logger
	Events      *event.Bus[event.SessionEvent]
	GracePeriod time.Duration
}

// Supervisor owns the live session set. It is the only mutator of that set:
// sessions are added during Start and removed by the per-session monitor
// once they terminate. The router and observer endpoint only read it.
type Supervisor struct {
	registry *config.Registry
	agg      *console.Aggregator
	logger   *logging.Logger
	events   *event.Bus[event.SessionEvent]
	grace    time.Duration

	mu       sync.RWMutex
	sessions map[string]*session.Session

	monitors     sync.WaitGroup
	shutdownOnce sync.Once
	shutdownReq  chan struct{}
	shuttingDown atomic.Bool
}

func New(options Options) *Supervisor {
	grace := options.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}
	return &Supervisor{
		registry:    options.Registry,
		agg:         options.Aggregator,
		logger:      options.Logger,
		events:      options.Events,
		grace:       grace,
		sessions:    make(map[string]*session.Session),
		shutdownReq: make(chan struct{}),
	}
}

// Start eagerly spawns every registered session. A spawn failure is reported
// on the console and skipped; the rest proceed. Only a completely failed
// launch set is an error.
func (s *Supervisor) Start() error {
	started := 0
	for _, name := range s.registry.Names() {
		spec, ok := s.registry.Lookup(name)
		if !ok {
			continue
		}
		sess, err := session.Start(spec, s.agg, s.logger)
		if err != nil {
			s.agg.Notice("failed to start %q: %v", name, err)
			if s.logger != nil {
				s.logger.Error("session spawn failed", map[string]string{
					"session": name,
					"error":   err.Error(),
				})
			}
			continue
		}

		s.mu.Lock()
		s.sessions[name] = sess
		s.mu.Unlock()
		started++

		s.agg.Notice("started %q (pid %d)", name, sess.Pid())
		if s.logger != nil {
			s.logger.Info("session started", map[string]string{
				"session": name,
				"pid":     strconv.Itoa(sess.Pid()),
			})
		}
		s.publishEvent(sess, event.SessionStarted, false)

		s.monitors.Add(1)
		go s.monitor(sess)
	}

	if started == 0 {
		return ErrNoSessions
	}
	return nil
}

// Route parses an operator line and dispatches it: empty lines do nothing,
// exit triggers the global shutdown path, anything else goes to the named
// session's stdin.
func (s *Supervisor) Route(line string) error {
	cmd := console.ParseLine(line)
	switch cmd.Directive {
	case console.DirectiveNone:
		return nil
	case console.DirectiveShutdown:
		s.RequestShutdown()
		return nil
	}

	sess, ok := s.Session(cmd.Session)
	if !ok {
		if _, registered := s.registry.Lookup(cmd.Session); registered {
			return fmt.Errorf("session %q: %w", cmd.Session, session.ErrSessionClosed)
		}
		return fmt.Errorf("%w: %q", ErrUnknownSession, cmd.Session)
	}
	return sess.Send(cmd.Payload)
}

// Session looks up a live session by name.
func (s *Supervisor) Session(name string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[name]
	return sess, ok
}

// Sessions returns snapshots of the live sessions, sorted by name.
func (s *Supervisor) Sessions() []session.Info {
	s.mu.RLock()
	infos := make([]session.Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// RequestShutdown arms the global shutdown path. The exit directive, console
// EOF, and interrupt signals all funnel through here, so there is exactly
// one shutdown algorithm.
func (s *Supervisor) RequestShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownReq)
	})
}

// ShutdownRequested is closed once any shutdown trigger has fired.
func (s *Supervisor) ShutdownRequested() <-chan struct{} {
	return s.shutdownReq
}

// Shutdown stops every live session: a concurrent cooperative stop, one
// shared grace timer, then a forced kill for stragglers. It returns only
// when every session has terminated, so no children are orphaned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.RequestShutdown()
	s.shuttingDown.Store(true)
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.RLock()
	live := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	if len(live) > 0 {
		s.agg.Notice("shutting down %d session(s)...", len(live))

		var stops sync.WaitGroup
		for _, sess := range live {
			stops.Add(1)
			go func(sess *session.Session) {
				defer stops.Done()
				sess.RequestStop()
			}(sess)
		}
		stops.Wait()

		terminated := make(chan struct{}, len(live))
		for _, sess := range live {
			go func(sess *session.Session) {
				<-sess.Done()
				terminated <- struct{}{}
			}(sess)
		}

		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		timerC := timer.C
		ctxDone := ctx.Done()

		pending := len(live)
		for pending > 0 {
			select {
			case <-terminated:
				pending--
			case <-timerC:
				timerC = nil
				s.forceKillStragglers(live)
			case <-ctxDone:
				ctxDone = nil
				s.forceKillStragglers(live)
			}
		}
	}

	s.monitors.Wait()
	s.agg.Notice("all sessions terminated")
	if s.logger != nil {
		s.logger.Info("shutdown complete", nil)
	}
	return nil
}

// Exceeding the grace period is an expected, handled path, not an error.
func (s *Supervisor) forceKillStragglers(live []*session.Session) {
	for _, sess := range live {
		if sess.State() == session.StateTerminated {
			continue
		}
		s.agg.Notice("session %q did not stop within %s, killing", sess.Name, s.grace)
		if s.logger != nil {
			s.logger.Info("grace period elapsed, escalating", map[string]string{
				"session": sess.Name,
			})
		}
		sess.ForceKill()
	}
}

// monitor watches one session for termination. A session that terminates
// without a prior stop request crashed on its own; that is reported but
// stops nothing else.
func (s *Supervisor) monitor(sess *session.Session) {
	defer s.monitors.Done()
	<-sess.Done()

	s.mu.Lock()
	if current, ok := s.sessions[sess.Name]; ok && current == sess {
		delete(s.sessions, sess.Name)
	}
	s.mu.Unlock()

	code, _ := sess.ExitCode()
	if sess.StopRequested() || s.shuttingDown.Load() {
		if s.logger != nil {
			s.logger.Info("session stopped", map[string]string{
				"session":   sess.Name,
				"exit_code": strconv.Itoa(code),
			})
		}
		s.publishEvent(sess, event.SessionStopped, false)
		return
	}

	s.agg.Notice("session %q exited unexpectedly (exit code %d)", sess.Name, code)
	if s.logger != nil {
		s.logger.Warn("session exited unexpectedly", map[string]string{
			"session":   sess.Name,
			"exit_code": strconv.Itoa(code),
		})
	}
	s.publishEvent(sess, event.SessionExited, true)
}

func (s *Supervisor) publishEvent(sess *session.Session, eventType string, unexpected bool) {
	if s.events == nil {
		return
	}
	ev := event.NewSessionEvent(sess.Name, eventType)
	ev.Pid = sess.Pid()
	ev.Unexpected = unexpected
	if code, ok := sess.ExitCode(); ok {
		ev.ExitCode = code
	}
	s.events.Publish(ev)
}
