package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mastershell/internal/config"
	"mastershell/internal/console"
	"mastershell/internal/event"
	"mastershell/internal/logging"
	"mastershell/internal/server"
	"mastershell/internal/supervisor"
)

// Extra headroom past the grace period so the forced-kill path can finish
// before the shutdown context expires.
const shutdownSlack = 10 * time.Second

func runSupervisor(cmd *cobra.Command) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, cmd); err != nil {
		return err
	}

	level, ok := logging.ParseLevel(flagLogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", flagLogLevel)
	}
	logWriter, closeLog, err := openLogWriter(flagLogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logging.NewLogger(logWriter, level)

	formatter := console.NewFormatter(cfg.NoColor)
	agg := console.NewAggregator(console.AggregatorOptions{
		Writer:      cmd.OutOrStdout(),
		Formatter:   formatter,
		BufferLines: cfg.BufferLines,
		Logger:      logger,
	})
	events := event.NewBus[event.SessionEvent](event.BusOptions{
		Name:        "sessions",
		HistorySize: 64,
	})

	sup := supervisor.New(supervisor.Options{
		Registry:    cfg.Registry,
		Aggregator:  agg,
		Logger:      logger,
		Events:      events,
		GracePeriod: cfg.GracePeriod,
	})
	if err := sup.Start(); err != nil {
		agg.Close()
		events.Close()
		return err
	}

	coordinator := newShutdownCoordinator(logger)

	configEvents := event.NewBus[event.ConfigEvent](event.BusOptions{Name: "config"})
	watcher, err := config.Watch(flagConfig, configEvents, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", map[string]string{
			"error": err.Error(),
		})
	} else {
		go noticeConfigChanges(configEvents, agg)
		coordinator.Add("config watcher", func(context.Context) error {
			return watcher.Close()
		})
	}

	if cfg.Listen != "" {
		srv := server.New(server.Options{
			Addr:       cfg.Listen,
			Logger:     logger,
			Aggregator: agg,
			Control:    sup,
		})
		if err := srv.Start(); err != nil {
			logger.Error("observer server failed to start", map[string]string{
				"addr":  cfg.Listen,
				"error": err.Error(),
			})
		} else {
			agg.Notice("observer endpoint listening on %s", srv.Addr())
			coordinator.Add("observer server", srv.Shutdown)
		}
	}

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignalWatch := watchShutdownSignals(logger, sup.RequestShutdown, signalCh)
	defer stopSignalWatch()

	loop, err := newConsoleLoop(consoleLoopOptions{
		Prompt:      formatter.Prompt("MasterShell> "),
		HistoryFile: config.ExpandHome(cfg.HistoryFile),
		Registry:    cfg.Registry,
		Supervisor:  sup,
		Aggregator:  agg,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("interactive console unavailable, waiting for signals", map[string]string{
			"error": err.Error(),
		})
	} else {
		go loop.run()
		coordinator.Add("console input", func(context.Context) error {
			return loop.Close()
		})
	}

	<-sup.ShutdownRequested()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod+shutdownSlack)
	defer cancel()

	coordinator.Add("sessions", sup.Shutdown)
	coordinator.Add("console output", func(context.Context) error {
		agg.Close()
		events.Close()
		return nil
	})
	return coordinator.Run(ctx)
}

// noticeConfigChanges turns watcher events into console notices. The running
// registry never changes mid-flight; the operator restarts to apply edits.
func noticeConfigChanges(bus *event.Bus[event.ConfigEvent], agg *console.Aggregator) {
	events, cancel := bus.Subscribe()
	defer cancel()
	for ev := range events {
		agg.Notice("launch configuration changed on disk (%s); restart to apply", ev.Path)
	}
}

func openLogWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, func() { _ = file.Close() }, nil
}
