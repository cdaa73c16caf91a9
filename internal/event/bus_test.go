package event

import (
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[SessionEvent](BusOptions{Name: "sessions"})
	first, cancelFirst := bus.Subscribe()
	second, cancelSecond := bus.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	bus.Publish(NewSessionEvent("alpha", SessionStarted))

	for _, ch := range []<-chan SessionEvent{first, second} {
		select {
		case got := <-ch:
			if got.Session != "alpha" || got.EventType != SessionStarted {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout waiting for event")
		}
	}
}

func TestBusFilteredSubscription(t *testing.T) {
	bus := NewBus[SessionEvent](BusOptions{})
	ch, cancel := bus.SubscribeFiltered(func(e SessionEvent) bool {
		return e.EventType == SessionExited
	})
	defer cancel()

	bus.Publish(NewSessionEvent("alpha", SessionStarted))
	bus.Publish(NewSessionEvent("beta", SessionExited))

	select {
	case got := <-ch:
		if got.Session != "beta" {
			t.Fatalf("filter leaked event: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for filtered event")
	}
}

func TestBusSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus[int](BusOptions{SubscriberBufferSize: 1})
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on full subscriber")
	}
	if bus.Dropped() == 0 {
		t.Fatalf("expected drops for a full subscriber buffer")
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus[int](BusOptions{})
	ch, _ := bus.Subscribe()
	bus.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for close")
	}

	// Publishing after close is a no-op.
	bus.Publish(1)
}

func TestBusHistory(t *testing.T) {
	bus := NewBus[int](BusOptions{HistorySize: 3})
	for i := 1; i <= 5; i++ {
		bus.Publish(i)
	}

	got := bus.History()
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("unexpected history: %v", got)
	}
}
