package main

import (
	"context"
	"errors"
	"sync"

	"mastershell/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs teardown phases in registration order exactly
// once. A failing phase is recorded and the remaining phases still run.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (c *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if c == nil || stop == nil {
		return
	}
	c.phases = append(c.phases, shutdownPhase{name: name, stop: stop})
}

func (c *shutdownCoordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var runErr error
	c.once.Do(func() {
		for _, phase := range c.phases {
			if c.logger != nil {
				c.logger.Info("shutdown phase starting", map[string]string{
					"phase": phase.name,
				})
			}
			if err := phase.stop(ctx); err != nil {
				runErr = errors.Join(runErr, err)
				if c.logger != nil {
					c.logger.Warn("shutdown phase failed", map[string]string{
						"phase": phase.name,
						"error": err.Error(),
					})
				}
			}
		}
	})
	return runErr
}
