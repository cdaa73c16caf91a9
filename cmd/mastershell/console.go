package main

import (
	"errors"
	"io"
	"sync"

	"github.com/chzyer/readline"

	"mastershell/internal/config"
	"mastershell/internal/console"
	"mastershell/internal/logging"
	"mastershell/internal/supervisor"
)

type consoleLoopOptions struct {
	Prompt      string
	HistoryFile string
	Registry    *config.Registry
	Supervisor  *supervisor.Supervisor
	Aggregator  *console.Aggregator
	Logger      *logging.Logger
}

// consoleLoop reads operator lines and hands them to the supervisor's router.
// EOF, interrupt, and a typed exit all end in the same shutdown request.
type consoleLoop struct {
	rl     *readline.Instance
	sup    *supervisor.Supervisor
	agg    *console.Aggregator
	logger *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newConsoleLoop(options consoleLoopOptions) (*consoleLoop, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItemDynamic(func(string) []string {
			return options.Registry.Names()
		}),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          options.Prompt,
		HistoryFile:     options.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &consoleLoop{
		rl:     rl,
		sup:    options.Supervisor,
		agg:    options.Aggregator,
		logger: options.Logger,
		done:   make(chan struct{}),
	}, nil
}

func (c *consoleLoop) run() {
	defer close(c.done)
	defer c.sup.RequestShutdown()

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && c.logger != nil {
				c.logger.Debug("console input closed", map[string]string{
					"error": err.Error(),
				})
			}
			return
		}

		if err := c.sup.Route(line); err != nil {
			// Routing errors are operator feedback; they go through the
			// aggregator so they cannot tear session output.
			c.agg.Notice("%v", err)
		}

		select {
		case <-c.sup.ShutdownRequested():
			return
		default:
		}
	}
}

// Close unblocks a pending Readline and waits for the loop to exit.
func (c *consoleLoop) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rl.Close()
		<-c.done
	})
	return err
}
