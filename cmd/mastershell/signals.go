package main

import (
	"os"
	"sync/atomic"

	"mastershell/internal/logging"
)

// watchShutdownSignals forwards the first delivered signal to requestShutdown
// and logs any repeats. The returned function stops the watch.
func watchShutdownSignals(logger *logging.Logger, requestShutdown func(), signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					if logger != nil {
						logger.Info("shutdown signal received", fields)
					}
					if requestShutdown != nil {
						requestShutdown()
					}
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) && logger != nil {
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}
