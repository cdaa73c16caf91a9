package session

import "time"

type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
	// StreamSystem tags supervisor notices so they serialize with session
	// output on the console. Never produced by a child process.
	StreamSystem StreamKind = "system"
)

// OutputLine is one newline-delimited unit of child output. Seq is assigned
// per session per stream at the moment the line is read, so the aggregator
// can assert within-stream ordering even though cross-session delivery is
// unordered.
type OutputLine struct {
	Session string     `json:"session"`
	Stream  StreamKind `json:"stream"`
	Text    string     `json:"text"`
	Seq     uint64     `json:"seq"`
	At      time.Time  `json:"at"`
}

// Publisher receives output lines from session reader goroutines. Publish may
// be called concurrently from any number of readers.
type Publisher interface {
	Publish(OutputLine)
}
