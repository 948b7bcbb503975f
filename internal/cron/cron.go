// Package cron fires jobs on 5-field cron schedules.
package cron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Job defines a scheduled task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a 5-field cron expression. Descriptors such as
// "@daily" and "@every 1h" are accepted too.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Trigger is a Job that hands its name to Fire on every tick. Fire is
// expected to return quickly, e.g. by enqueueing work for another goroutine.
type Trigger struct {
	JobName string
	Expr    string
	Fire    func(ctx context.Context, name string) error
}

var _ Job = (*Trigger)(nil)

// Name implements Job.
func (t *Trigger) Name() string { return t.JobName }

// Schedule implements Job.
func (t *Trigger) Schedule() string { return t.Expr }

// Run implements Job.
func (t *Trigger) Run(ctx context.Context) error {
	return t.Fire(ctx, t.JobName)
}
