// Package jobs runs configured backup jobs. A Manager accepts job runs into
// a bounded queue, Work drains that queue one item at a time and a Runner
// executes the steps of each job against restic.
package jobs

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/flemzord/resticd/internal/config"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Jobs is the job table of the configuration generation.
	Jobs map[string]config.Job

	// Queue receives accepted work items. The Manager never closes it.
	Queue chan<- WorkItem

	// Done is closed when the generation stops accepting work.
	Done <-chan struct{}

	Logger   *slog.Logger
	Observer Observer
}

// Manager holds the job table of one configuration generation and the
// sending side of its work queue.
type Manager struct {
	jobs     map[string]config.Job
	names    []string
	queue    chan<- WorkItem
	done     <-chan struct{}
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewManager creates a manager. The job table is copied.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = Observers(nil)
	}
	jobs := maps.Clone(cfg.Jobs)
	if jobs == nil {
		jobs = make(map[string]config.Job)
	}
	return &Manager{
		jobs:     jobs,
		names:    slices.Sorted(maps.Keys(jobs)),
		queue:    cfg.Queue,
		done:     cfg.Done,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Names returns the job names in sorted order.
func (m *Manager) Names() []string {
	return slices.Clone(m.names)
}

// Jobs returns a copy of the job table.
func (m *Manager) Jobs() map[string]config.Job {
	return maps.Clone(m.jobs)
}

// Job returns the named job definition.
func (m *Manager) Job(name string) (config.Job, bool) {
	job, ok := m.jobs[name]
	return job, ok
}

// Enqueue queues a run of the named job without blocking. It fails with
// ErrJobNotFound, ErrShuttingDown or ErrQueueFull; every failure is logged
// and reported to the observer.
func (m *Manager) Enqueue(name, source string) error {
	if err := m.enqueue(name, source); err != nil {
		m.logger.Error("jobs: enqueue rejected", "job", name, "source", source, "error", err)
		m.observer.Rejected(name, source, err)
		return err
	}
	return nil
}

func (m *Manager) enqueue(name, source string) error {
	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	if m.stopped() {
		return ErrShuttingDown
	}

	item := WorkItem{Name: name, Job: job, Source: source, QueuedAt: m.now()}
	select {
	case m.queue <- item:
	default:
		return ErrQueueFull
	}

	m.logger.Info("jobs: run queued", "job", name, "source", source)
	m.observer.Queued(item)
	return nil
}

func (m *Manager) stopped() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
