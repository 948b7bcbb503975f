package core

import "context"

// Starter is implemented by components that start background work
// (listeners, pollers, exporters). Start must not block.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that release resources.
// Called during shutdown in reverse order of Start.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Hooks adapts plain functions to Starter and Stopper. Either may be nil.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Start implements Starter.
func (h Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop implements Stopper.
func (h Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}
