// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"

	"github.com/flemzord/resticd/internal/cron"
)

// MockJob is a cron.Job with a fixed name and schedule. RunFunc may be
// nil.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job.
func (m *MockJob) Run(ctx context.Context) error {
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(ctx)
}

// Recorder collects the job names passed to a Trigger's Fire callback,
// standing in for a job manager.
type Recorder struct {
	// Err is returned by every Fire call, e.g. a queue-full error.
	Err error

	mu    sync.Mutex
	names []string
}

// Fire records name and returns r.Err.
func (r *Recorder) Fire(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.Err
}

// Names returns a copy of the recorded names.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}
