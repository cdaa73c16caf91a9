package console

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"mastershell/internal/buffer"
	"mastershell/internal/config"
	"mastershell/internal/logging"
	"mastershell/internal/session"
)

// Aggregator serializes output lines from every session onto the single
// console writer. The drain goroutine is the writer's only user, so each line
// reaches the console atomically; the queue is FIFO, so within one
// session-stream the console order equals the sequence order.
//
// Buffer policy: unbounded FIFO. A producer only pays for the queue append;
// no line is ever dropped. Memory is bounded in practice by how far the
// console can fall behind during one burst.
type Aggregator struct {
	formatter *Formatter
	writer    io.Writer
	logger    *logging.Logger

	mu     sync.Mutex
	queue  []session.OutputLine
	closed bool
	wake   chan struct{}

	recentMu sync.Mutex
	recent   *buffer.Ring[session.OutputLine]

	bcast     *Broadcaster
	noticeSeq atomic.Uint64
	delivered atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

type AggregatorOptions struct {
	Writer      io.Writer
	Formatter   *Formatter
	BufferLines int
	Logger      *logging.Logger
}

func NewAggregator(options AggregatorOptions) *Aggregator {
	writer := options.Writer
	if writer == nil {
		writer = io.Discard
	}
	formatter := options.Formatter
	if formatter == nil {
		formatter = NewFormatter(true)
	}
	bufferLines := options.BufferLines
	if bufferLines <= 0 {
		bufferLines = config.DefaultBufferLines
	}

	a := &Aggregator{
		formatter: formatter,
		writer:    writer,
		logger:    options.Logger,
		wake:      make(chan struct{}, 1),
		recent:    buffer.NewRing[session.OutputLine](bufferLines),
		bcast:     NewBroadcaster(),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues a line for console delivery. Safe for concurrent use by
// any number of session readers; never blocks beyond the queue append.
func (a *Aggregator) Publish(line session.OutputLine) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.queue = append(a.queue, line)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Notice publishes a supervisor message under the reserved origin so it
// serializes with session output instead of tearing through it.
func (a *Aggregator) Notice(format string, args ...any) {
	a.Publish(session.OutputLine{
		Session: config.ReservedName,
		Stream:  session.StreamSystem,
		Text:    fmt.Sprintf(format, args...),
		Seq:     a.noticeSeq.Add(1),
		At:      time.Now().UTC(),
	})
}

// Subscribe mirrors delivered lines to an observer. Observers are
// best-effort; a slow observer loses lines but never slows the console.
func (a *Aggregator) Subscribe() (<-chan session.OutputLine, func()) {
	return a.bcast.Subscribe()
}

// RecentLines returns the most recent delivered lines, oldest first.
func (a *Aggregator) RecentLines(n int) []session.OutputLine {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()
	return a.recent.Last(n)
}

// Delivered reports how many lines have reached the console writer.
func (a *Aggregator) Delivered() uint64 {
	return a.delivered.Load()
}

// Close drains everything already published, then stops the drain loop and
// closes observer channels. Publish becomes a no-op afterwards.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()

		select {
		case a.wake <- struct{}{}:
		default:
		}
		<-a.done
		a.bcast.Close()
	})
}

func (a *Aggregator) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		closed := a.closed
		a.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-a.wake
			continue
		}
		for _, line := range batch {
			a.deliver(line)
		}
	}
}

func (a *Aggregator) deliver(line session.OutputLine) {
	if _, err := fmt.Fprintln(a.writer, a.formatter.Format(line)); err != nil && a.logger != nil {
		a.logger.Warn("console write failed", map[string]string{
			"error": err.Error(),
		})
	}
	a.delivered.Add(1)

	a.recentMu.Lock()
	a.recent.Add(line)
	a.recentMu.Unlock()

	a.bcast.Broadcast(line)
}
