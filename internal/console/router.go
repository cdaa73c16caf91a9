package console

import "strings"

type Directive int

const (
	// DirectiveNone is an empty line; nothing happens.
	DirectiveNone Directive = iota
	// DirectiveSend routes a payload to a named session.
	DirectiveSend
	// DirectiveShutdown is the exit command; it triggers the one global
	// shutdown path.
	DirectiveShutdown
)

// Command is a parsed operator line.
type Command struct {
	Directive Directive
	Session   string
	Payload   string
}

// ParseLine splits an operator line into a directive or a
// (session, payload) pair. The session name is the first
// whitespace-delimited token; the payload is the rest of the line and may be
// empty.
func ParseLine(raw string) Command {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Command{Directive: DirectiveNone}
	}
	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Directive: DirectiveShutdown}
	}

	if idx := strings.IndexAny(line, " \t"); idx >= 0 {
		return Command{
			Directive: DirectiveSend,
			Session:   line[:idx],
			Payload:   strings.TrimLeft(line[idx:], " \t"),
		}
	}
	return Command{Directive: DirectiveSend, Session: line}
}
