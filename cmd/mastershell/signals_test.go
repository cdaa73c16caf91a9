package main

import (
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchShutdownSignalsRequestsShutdownOnce(t *testing.T) {
	signalCh := make(chan os.Signal, 2)
	var requests atomic.Int32

	stop := watchShutdownSignals(nil, func() {
		requests.Add(1)
	}, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	signalCh <- os.Interrupt

	deadline := time.Now().Add(2 * time.Second)
	for requests.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("signal never triggered shutdown")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Give the second delivery time to arrive; it must not fire again.
	time.Sleep(50 * time.Millisecond)
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected one shutdown request, got %d", got)
	}
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, func() {
		t.Fatalf("unexpected shutdown request")
	}, nil)
	stop()
}
