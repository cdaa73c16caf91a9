package event

import "time"

const (
	SessionStarted = "session_started"
	SessionStopped = "session_stopped"
	SessionExited  = "session_exited"
)

// SessionEvent captures a session lifecycle change.
type SessionEvent struct {
	EventType  string    `json:"type"`
	Session    string    `json:"session"`
	Pid        int       `json:"pid,omitempty"`
	ExitCode   int       `json:"exit_code,omitempty"`
	Unexpected bool      `json:"unexpected,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewSessionEvent(session, eventType string) SessionEvent {
	return SessionEvent{
		EventType:  eventType,
		Session:    session,
		OccurredAt: time.Now().UTC(),
	}
}

func (e SessionEvent) Type() string {
	return e.EventType
}

func (e SessionEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// ConfigEvent captures an on-disk change to the launch configuration.
type ConfigEvent struct {
	EventType  string    `json:"type"`
	Path       string    `json:"path"`
	Operation  string    `json:"operation"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewConfigEvent(path, operation string) ConfigEvent {
	return ConfigEvent{
		EventType:  "config_changed",
		Path:       path,
		Operation:  operation,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ConfigEvent) Type() string {
	return e.EventType
}

func (e ConfigEvent) Timestamp() time.Time {
	return e.OccurredAt
}
