package session

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Send when the session is not running.
var ErrSessionClosed = errors.New("session closed")

// SpawnError reports a child process that could not be launched. It is local
// to the failing session; other sessions are unaffected.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn session %q: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
