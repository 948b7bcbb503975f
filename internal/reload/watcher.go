// Package reload detects configuration file changes and cancels the
// contexts registered against the current configuration.
package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultDebounce     = 2 * time.Second
)

// ErrConfigChanged is the cancellation cause passed to registered
// contexts when the configuration file changes.
var ErrConfigChanged = errors.New("reload: configuration changed")

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes.
	// Defaults to 1 second if zero.
	PollInterval time.Duration

	// Debounce is how long the file must stay unchanged before a change
	// is reported, so an editor writing in several steps triggers one
	// reload. Defaults to 2 seconds if zero.
	Debounce time.Duration

	Logger *slog.Logger
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

func (c WatcherConfig) debounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return defaultDebounce
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file was created, modified or removed.
	EventModified EventType = "modified"

	// EventManual indicates a reload requested through Notify.
	EventManual EventType = "manual"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher polls a configuration file for changes. On every change it
// cancels all registered contexts and emits an Event.
type Watcher struct {
	cfg     WatcherConfig
	logger  *slog.Logger
	events  chan Event
	manual  chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	cancels map[uint64]context.CancelCauseFunc
	nextID  uint64

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, 1),
		manual:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		cancels: make(map[uint64]context.CancelCauseFunc),
	}
}

// Register adds cancel to the set cancelled on the next change. The
// returned function removes it again; calling it after the change fired
// is a no-op.
func (w *Watcher) Register(cancel context.CancelCauseFunc) (unregister func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.cancels[id] = cancel
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.cancels, id)
		w.mu.Unlock()
	}
}

// Registered returns the number of registered cancel functions.
func (w *Watcher) Registered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.cancels)
}

// Start begins polling the config file for changes. Only the first call
// starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of change events. Events are dropped when
// nobody reads them; the cancellation of registered contexts is the
// primary notification.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Notify requests a reload as if the file had changed, bypassing the
// debounce delay. Used for SIGHUP.
func (w *Watcher) Notify() {
	select {
	case w.manual <- struct{}{}:
	default:
	}
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

// fileState is what the watcher compares between polls.
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s fileState) equal(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	debounce := w.cfg.debounceOrDefault()
	last := w.stat()
	var pendingSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.manual:
			last = w.stat()
			pendingSince = time.Time{}
			w.fire(EventManual)
		case now := <-ticker.C:
			current := w.stat()
			if !current.equal(last) {
				last = current
				pendingSince = now
				continue
			}
			if !pendingSince.IsZero() && now.Sub(pendingSince) >= debounce {
				pendingSince = time.Time{}
				w.fire(EventModified)
			}
		}
	}
}

// fire cancels every registered context and emits an event.
func (w *Watcher) fire(typ EventType) {
	w.mu.Lock()
	cancels := w.cancels
	w.cancels = make(map[uint64]context.CancelCauseFunc)
	w.mu.Unlock()

	w.logger.Info("reload: configuration change detected",
		"path", w.cfg.ConfigPath,
		"type", string(typ),
		"cancelled", len(cancels),
	)
	for _, cancel := range cancels {
		cancel(ErrConfigChanged)
	}

	select {
	case w.events <- Event{Type: typ, ConfigPath: w.cfg.ConfigPath}:
	default:
		// Drop event if channel is full.
	}
}

func (w *Watcher) stat() fileState {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}
