// Package events broadcasts job and supervisor activity to subscribers,
// such as websocket clients of the API.
package events

import (
	"sync"
	"time"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

// Type names an event.
type Type string

// Event types.
const (
	JobQueued       Type = "job.queued"
	JobRejected     Type = "job.rejected"
	JobStarted      Type = "job.started"
	StepFinished    Type = "step.finished"
	JobFinished     Type = "job.finished"
	StateChanged    Type = "supervisor.state"
	GenerationStart Type = "supervisor.generation"
)

// Event is one notification. Only the fields relevant to Type are set.
type Event struct {
	Type       Type      `json:"type"`
	Time       time.Time `json:"time"`
	Job        string    `json:"job,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Step       string    `json:"step,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	State      string    `json:"state,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
}

// Bus delivers events to every subscriber without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped uint64
	now     func() time.Time
}

var (
	_ jobs.Observer = (*Bus)(nil)
	_ host.Observer = (*Bus)(nil)
)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event), now: time.Now}
}

// Subscribe registers a subscriber with the given buffer size. The
// returned cancel function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Publish sends e to every subscriber. A zero Time is set to now.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	var dropped uint64
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	b.mu.RUnlock()

	if dropped > 0 {
		b.mu.Lock()
		b.dropped += dropped
		b.mu.Unlock()
	}
}

// Queued implements jobs.Observer.
func (b *Bus) Queued(item jobs.WorkItem) {
	b.Publish(Event{Type: JobQueued, Job: item.Name, Source: item.Source})
}

// Rejected implements jobs.Observer.
func (b *Bus) Rejected(name, source string, err error) {
	b.Publish(Event{Type: JobRejected, Job: name, Source: source, Error: err.Error()})
}

// RunStarted implements jobs.Observer.
func (b *Bus) RunStarted(run *jobs.Run) {
	b.Publish(Event{Type: JobStarted, Job: run.Job, RunID: run.ID, Source: run.Source})
}

// StepFinished implements jobs.Observer.
func (b *Bus) StepFinished(run *jobs.Run, step jobs.StepResult) {
	b.Publish(Event{
		Type:       StepFinished,
		Job:        run.Job,
		RunID:      run.ID,
		Step:       string(step.Step),
		Status:     string(step.Status),
		Error:      step.Error,
		SnapshotID: step.SnapshotID,
	})
}

// RunFinished implements jobs.Observer.
func (b *Bus) RunFinished(run *jobs.Run) {
	b.Publish(Event{Type: JobFinished, Job: run.Job, RunID: run.ID, Status: string(run.Status)})
}

// StateChanged implements host.Observer.
func (b *Bus) StateChanged(state host.State) {
	b.Publish(Event{Type: StateChanged, State: state.String()})
}

// GenerationStarted implements host.Observer.
func (b *Bus) GenerationStarted(id uint64, _ *config.Config) {
	b.Publish(Event{Type: GenerationStart, Generation: id})
}
