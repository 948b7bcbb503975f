package jobs

import (
	"time"

	"github.com/flemzord/resticd/internal/config"
)

// Enqueue sources.
const (
	SourceCron   = "cron"
	SourceAPI    = "api"
	SourceManual = "manual"
)

// WorkItem is one queued job run. Job is the definition as it was when the
// item was enqueued.
type WorkItem struct {
	Name     string
	Job      config.Job
	Source   string
	QueuedAt time.Time
}

// StepName identifies a job step.
type StepName string

// The steps of a job, in execution order.
const (
	StepBackup     StepName = "backup"
	StepClearLocks StepName = "clear_locks"
	StepForget     StepName = "forget"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"

	// StatusDegraded is a step that completed despite a non-fatal problem,
	// such as unreadable source files or a failed unlock.
	StatusDegraded StepStatus = "degraded"

	// StatusCancelled is a step that was not started because the
	// generation stopped.
	StatusCancelled StepStatus = "cancelled"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Step       StepName      `json:"step"`
	Status     StepStatus    `json:"status"`
	Error      string        `json:"error,omitempty"`
	SnapshotID string        `json:"snapshot_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Run records one execution of a job.
type Run struct {
	ID         string       `json:"id"`
	Job        string       `json:"job"`
	Source     string       `json:"source"`
	QueuedAt   time.Time    `json:"queued_at"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
	Status     StepStatus   `json:"status"`
	Steps      []StepResult `json:"steps"`
}

// finish derives the run status from its steps. The first of failed,
// cancelled and degraded found among the steps wins, in that order.
func (r *Run) finish(now time.Time) {
	r.FinishedAt = now
	r.Status = StatusSucceeded
	for _, want := range []StepStatus{StatusFailed, StatusCancelled, StatusDegraded} {
		for _, s := range r.Steps {
			if s.Status == want {
				r.Status = want
				return
			}
		}
	}
}

// Observer is notified of queue and run activity. Implementations must not
// block for long; they are called from the worker and cron goroutines.
type Observer interface {
	Queued(item WorkItem)
	Rejected(name, source string, err error)
	RunStarted(run *Run)
	StepFinished(run *Run, step StepResult)
	RunFinished(run *Run)
}

// Observers fans notifications out to several observers.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) Queued(item WorkItem) {
	for _, obs := range o {
		obs.Queued(item)
	}
}

func (o Observers) Rejected(name, source string, err error) {
	for _, obs := range o {
		obs.Rejected(name, source, err)
	}
}

func (o Observers) RunStarted(run *Run) {
	for _, obs := range o {
		obs.RunStarted(run)
	}
}

func (o Observers) StepFinished(run *Run, step StepResult) {
	for _, obs := range o {
		obs.StepFinished(run, step)
	}
}

func (o Observers) RunFinished(run *Run) {
	for _, obs := range o {
		obs.RunFinished(run)
	}
}
