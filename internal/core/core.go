// Package core manages the lifecycle of the long-lived components of the
// daemon: they start in registration order and stop in reverse.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of components.
type App struct {
	components []component
	logger     *slog.Logger
}

type component struct {
	name    string
	value   any
	started bool
}

// NewApp creates an empty App.
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger.With("component", "core")}
}

// Add registers a component. It should implement Starter, Stopper or both;
// anything else is ignored at start and stop.
func (a *App) Add(name string, c any) {
	a.components = append(a.components, component{name: name, value: c})
}

// Start starts every component in order. If one fails, the components
// already started are stopped in reverse order and the error returned.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		c := &a.components[i]
		if s, ok := c.value.(Starter); ok {
			a.logger.Debug("starting component", "name", c.name)
			if err := s.Start(ctx); err != nil {
				a.logger.Error("component start failed", "name", c.name, "error", err)
				a.stopFrom(i - 1)
				return fmt.Errorf("starting %s: %w", c.name, err)
			}
		}
		c.started = true
	}
	return nil
}

// Stop stops every started component in reverse order, bounded by a
// shutdown timeout. Stop errors are logged and joined.
func (a *App) Stop() error {
	return a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(index int) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := index; i >= 0; i-- {
		c := &a.components[i]
		if !c.started {
			continue
		}
		c.started = false
		s, ok := c.value.(Stopper)
		if !ok {
			continue
		}
		a.logger.Debug("stopping component", "name", c.name)
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
