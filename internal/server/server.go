package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mastershell/internal/console"
	"mastershell/internal/logging"
	"mastershell/internal/session"
)

const wsWriteTimeout = 10 * time.Second
const outboundFrameBuffer = 64

// Control is the slice of the supervisor the observer endpoint needs.
type Control interface {
	Route(line string) error
	Sessions() []session.Info
}

type Options struct {
	Addr       string
	Logger     *logging.Logger
	Aggregator *console.Aggregator
	Control    Control
}

// Server exposes the running supervisor to remote observers: session
// listings, the log buffer, recent output, and a websocket stream that also
// accepts routed input lines. The global exit directive stays operator-local
// and is rejected here.
type Server struct {
	addr     string
	logger   *logging.Logger
	agg      *console.Aggregator
	control  Control
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
}

func New(options Options) *Server {
	s := &Server{
		addr:    options.Addr,
		logger:  options.Logger,
		agg:     options.Aggregator,
		control: options.Control,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /lines", s.handleLines)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening. The bound address is available via Addr once Start
// has returned.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("observer server stopped", map[string]string{
					"error": err.Error(),
				})
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("observer server listening", map[string]string{
			"addr": listener.Addr().String(),
		})
	}
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.control.Sessions(),
	})
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lines": s.agg.RecentLines(0),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := []logging.Entry{}
	if s.logger != nil && s.logger.Buffer() != nil {
		entries = append(entries, s.logger.Buffer().List()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

type wsFrame struct {
	Type  string              `json:"type"`
	Line  *session.OutputLine `json:"line,omitempty"`
	Error string              `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	lines, cancelSub := s.agg.Subscribe()
	defer cancelSub()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", map[string]string{
				"error": err.Error(),
			})
		}
		return
	}

	outbound := make(chan wsFrame, outboundFrameBuffer)
	done := make(chan struct{})

	// Observers are lossy: a frame that does not fit the outbound buffer is
	// dropped rather than stalling the line forwarder.
	go func() {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				frame := wsFrame{Type: "output", Line: &line}
				select {
				case outbound <- frame:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	// Single writer goroutine; gorilla connections do not allow concurrent
	// writes.
	go func() {
		defer conn.Close()
		for {
			select {
			case frame := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.routeRemote(string(payload), outbound)
	}
	close(done)
}

func (s *Server) routeRemote(line string, outbound chan<- wsFrame) {
	if console.ParseLine(line).Directive == console.DirectiveShutdown {
		sendFrame(outbound, wsFrame{Type: "error", Error: "shutdown is operator-local"})
		return
	}
	if err := s.control.Route(line); err != nil {
		sendFrame(outbound, wsFrame{Type: "error", Error: err.Error()})
	}
}

func sendFrame(outbound chan<- wsFrame, frame wsFrame) {
	select {
	case outbound <- frame:
	default:
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
