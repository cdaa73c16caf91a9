package console

import (
	"sync"
	"sync/atomic"

	"mastershell/internal/session"
)

const subscriberBufferSize = 128

// Broadcaster fans delivered lines out to observers without blocking on slow
// listeners.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]chan session.OutputLine
	nextSubID   uint64
	closed      bool
	closeOnce   sync.Once
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan session.OutputLine),
	}
}

func (b *Broadcaster) Subscribe() (<-chan session.OutputLine, func()) {
	ch := make(chan session.OutputLine, subscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) Broadcast(line session.OutputLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for id, ch := range b.subscribers {
			delete(b.subscribers, id)
			close(ch)
		}
		b.mu.Unlock()
	})
}
