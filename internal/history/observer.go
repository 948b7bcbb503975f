package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/flemzord/resticd/internal/jobs"
)

const writeTimeout = 5 * time.Second

// Recorder writes run activity to a Store. Write failures are logged and
// never reach the job.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

var _ jobs.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Queued implements jobs.Observer.
func (r *Recorder) Queued(jobs.WorkItem) {}

// Rejected implements jobs.Observer.
func (r *Recorder) Rejected(string, string, error) {}

// RunStarted implements jobs.Observer.
func (r *Recorder) RunStarted(run *jobs.Run) {
	r.write("start run", run.ID, func(ctx context.Context) error {
		return r.store.StartRun(ctx, run)
	})
}

// StepFinished implements jobs.Observer.
func (r *Recorder) StepFinished(run *jobs.Run, step jobs.StepResult) {
	r.write("add step", run.ID, func(ctx context.Context) error {
		return r.store.AddStep(ctx, run.ID, step)
	})
}

// RunFinished implements jobs.Observer.
func (r *Recorder) RunFinished(run *jobs.Run) {
	r.write("finish run", run.ID, func(ctx context.Context) error {
		return r.store.FinishRun(ctx, run)
	})
}

// write runs fn with its own timeout. Observer calls carry no context and
// must complete even while the generation is being cancelled.
func (r *Recorder) write(op, runID string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.logger.Warn("history: write failed", "op", op, "run", runID, "error", err)
	}
}
