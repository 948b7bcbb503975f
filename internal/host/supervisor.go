// Package host owns the live configuration generation. The Supervisor
// loads the configuration, arms one cron trigger per job, runs the single
// job worker and rebuilds all of it whenever the configuration changes.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/cron"
	"github.com/flemzord/resticd/internal/jobs"
)

// ErrNotReady is returned by Enqueue before the first generation started.
var ErrNotReady = errors.New("host: no configuration loaded")

// Loader reads and validates the configuration for a new generation.
type Loader interface {
	Load(ctx context.Context) (*config.Config, error)
}

// Notifier cancels registered contexts when the configuration changes.
type Notifier interface {
	Register(cancel context.CancelCauseFunc) (unregister func())
}

// Runner executes one queued job run.
type Runner interface {
	Run(ctx context.Context, item jobs.WorkItem) *jobs.Run
}

// Observer is told about state changes and new generations.
type Observer interface {
	StateChanged(state State)
	GenerationStarted(generation uint64, cfg *config.Config)
}

// Observers fans notifications out to several observers.
type Observers []Observer

// StateChanged implements Observer.
func (o Observers) StateChanged(state State) {
	for _, obs := range o {
		obs.StateChanged(state)
	}
}

// GenerationStarted implements Observer.
func (o Observers) GenerationStarted(generation uint64, cfg *config.Config) {
	for _, obs := range o {
		obs.GenerationStarted(generation, cfg)
	}
}

// Config configures a Supervisor.
type Config struct {
	Loader Loader

	// Notifier may be nil, in which case only the parent context ends a
	// generation.
	Notifier Notifier

	// NewRunner builds the job runner of a generation.
	NewRunner func(cfg *config.Config) Runner

	// JobObserver is attached to the job manager of every generation.
	JobObserver jobs.Observer

	Observer Observer
	Logger   *slog.Logger
}

// Supervisor runs configuration generations one after the other. At most
// one generation is live at any time.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	state      atomic.Int32
	generation atomic.Uint64
	current    atomic.Pointer[generation]
}

// generation is the live graph built from one configuration.
type generation struct {
	id        uint64
	config    *config.Config
	manager   *jobs.Manager
	scheduler *cron.Scheduler
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, logger: logger}
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Generation returns the number of the most recent generation, 0 before
// the first one started.
func (s *Supervisor) Generation() uint64 {
	return s.generation.Load()
}

// Manager returns the job manager of the most recent generation, or nil
// before the first one started. The manager of a stopped generation
// rejects enqueues with jobs.ErrShuttingDown.
func (s *Supervisor) Manager() *jobs.Manager {
	if g := s.current.Load(); g != nil {
		return g.manager
	}
	return nil
}

// Config returns the configuration of the most recent generation.
func (s *Supervisor) Config() *config.Config {
	if g := s.current.Load(); g != nil {
		return g.config
	}
	return nil
}

// NextRun returns the next scheduled run of the named job.
func (s *Supervisor) NextRun(name string) (time.Time, bool) {
	if g := s.current.Load(); g != nil {
		return g.scheduler.Next(name)
	}
	return time.Time{}, false
}

// Enqueue queues a run of the named job in the live generation.
func (s *Supervisor) Enqueue(name, source string) error {
	m := s.Manager()
	if m == nil {
		return ErrNotReady
	}
	return m.Enqueue(name, source)
}

func (s *Supervisor) setState(state State) {
	if State(s.state.Swap(int32(state))) == state {
		return
	}
	s.logger.Debug("host: state changed", "state", state.String())
	if s.cfg.Observer != nil {
		s.cfg.Observer.StateChanged(state)
	}
}

// Run loads and runs generations until ctx is done. A generation ends when
// the configuration changes; the next one is loaded only after the
// previous one fully stopped. A configuration that fails to load is
// reported and the supervisor waits for the next change. Run returns nil
// once ctx is done and the live generation drained.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	for ctx.Err() == nil {
		genCtx, cancel := context.WithCancelCause(ctx)
		unregister := func() {}
		if s.cfg.Notifier != nil {
			unregister = s.cfg.Notifier.Register(cancel)
		}

		s.setState(StateLoading)
		cfg, err := s.cfg.Loader.Load(genCtx)
		switch {
		case err != nil && genCtx.Err() != nil:
			// The configuration changed or we are stopping while loading.
		case err != nil:
			s.logger.Error("host: configuration load failed, waiting for a change", "error", err)
			s.setState(StateIdle)
			<-genCtx.Done()
		default:
			if err := s.runGeneration(genCtx, cfg); err != nil {
				s.logger.Error("host: generation failed, waiting for a change", "error", err)
				s.setState(StateIdle)
				<-genCtx.Done()
			}
		}

		unregister()
		cancel(nil)
		if ctx.Err() == nil {
			s.logger.Info("host: reloading configuration", "cause", context.Cause(genCtx))
		}
	}

	s.logger.Info("host: supervisor stopped")
	return nil
}

// runGeneration arms the triggers and the worker of cfg, blocks until ctx
// is done and returns once both have stopped.
func (s *Supervisor) runGeneration(ctx context.Context, cfg *config.Config) error {
	id := s.generation.Add(1)
	log := s.logger.With("generation", id)

	queue := make(chan jobs.WorkItem, cfg.QueueCapacity)
	manager := jobs.NewManager(jobs.ManagerConfig{
		Jobs:     cfg.Jobs,
		Queue:    queue,
		Done:     ctx.Done(),
		Logger:   log,
		Observer: s.cfg.JobObserver,
	})

	scheduler := cron.NewScheduler(log)
	for _, name := range manager.Names() {
		job, _ := manager.Job(name)
		trigger := &cron.Trigger{
			JobName: name,
			Expr:    job.Cron,
			Fire: func(_ context.Context, name string) error {
				return manager.Enqueue(name, jobs.SourceCron)
			},
		}
		if err := scheduler.RegisterJob(trigger); err != nil {
			return fmt.Errorf("host: registering job %q: %w", name, err)
		}
	}

	runner := s.cfg.NewRunner(cfg)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("host: starting scheduler: %w", err)
	}

	s.current.Store(&generation{id: id, config: cfg, manager: manager, scheduler: scheduler})
	if s.cfg.Observer != nil {
		s.cfg.Observer.GenerationStarted(id, cfg)
	}
	s.setState(StateRunning)
	log.Info("host: generation started", "jobs", len(cfg.Jobs), "queue_capacity", cfg.QueueCapacity)

	var g errgroup.Group
	g.Go(func() error {
		jobs.Work(ctx, queue, func(ctx context.Context, item jobs.WorkItem) {
			runner.Run(ctx, item)
		}, log)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Trigger callbacks only enqueue, so waiting for them is bounded.
		return scheduler.Stop(context.WithoutCancel(ctx))
	})

	<-ctx.Done()
	s.setState(StateDraining)
	err := g.Wait()
	log.Info("host: generation stopped", "cause", context.Cause(ctx), "dropped", len(queue))
	if err != nil {
		log.Warn("host: generation stopped with error", "error", err)
	}
	return nil
}
