package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/restic"
)

const tracerName = "github.com/flemzord/resticd/internal/jobs"

// Restic is the subset of *restic.Client the runner uses.
type Restic interface {
	CanOpen(ctx context.Context) (bool, error)
	Init(ctx context.Context) (*restic.Initialized, error)
	Backup(ctx context.Context, paths []string, opts restic.BackupOptions, onMessage func(restic.Message)) (*restic.BackupResult, error)
	LockIDs(ctx context.Context) ([]string, error)
	Lock(ctx context.Context, id string) (*restic.LockInfo, error)
	Unlock(ctx context.Context, removeAll bool) error
	Forget(ctx context.Context, opts restic.ForgetOptions) error
}

var _ Restic = (*restic.Client)(nil)

// ClientFactory builds the restic client for one job.
type ClientFactory func(name string, job config.Job) Restic

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Binary is the restic executable used by the default client factory.
	Binary string

	// NewClient overrides the client factory, mostly for tests.
	NewClient ClientFactory

	// FixedDrives lists fixed drives for jobs with source_fixed_drives.
	// Defaults to FixedDrives.
	FixedDrives func(context.Context) ([]string, error)

	Logger   *slog.Logger
	Observer Observer
	Tracer   trace.Tracer
}

// Runner executes the steps of a job: backup, stale lock removal and
// forget. Every step runs even when a previous one failed.
type Runner struct {
	newClient   ClientFactory
	fixedDrives func(context.Context) ([]string, error)
	logger      *slog.Logger
	observer    Observer
	tracer      trace.Tracer
	now         func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		newClient:   cfg.NewClient,
		fixedDrives: cfg.FixedDrives,
		logger:      cfg.Logger,
		observer:    cfg.Observer,
		tracer:      cfg.Tracer,
		now:         time.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.newClient == nil {
		binary, logger := cfg.Binary, r.logger
		r.newClient = func(name string, job config.Job) Restic {
			return restic.New(restic.Config{
				Binary:      binary,
				Repository:  job.Repository.URL,
				Password:    job.Repository.Password,
				Environment: job.Environment,
				Logger:      logger.With("job", name),
			})
		}
	}
	if r.fixedDrives == nil {
		r.fixedDrives = FixedDrives
	}
	if r.observer == nil {
		r.observer = Observers(nil)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

type step struct {
	name    StepName
	enabled func(config.Job) bool
	run     func(r *Runner, ctx context.Context, log *slog.Logger, client Restic, item WorkItem, res *StepResult) error
}

var steps = []step{
	{StepBackup, func(config.Job) bool { return true }, (*Runner).backup},
	{StepClearLocks, config.Job.LocksEnabled, (*Runner).clearLocks},
	{StepForget, func(j config.Job) bool { return j.Forget.Enabled }, (*Runner).forget},
}

// Run executes item and returns its record. The steps stop being started
// once ctx is done; the remaining ones are reported as cancelled.
func (r *Runner) Run(ctx context.Context, item WorkItem) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Job:       item.Name,
		Source:    item.Source,
		QueuedAt:  item.QueuedAt,
		StartedAt: r.now(),
	}
	log := r.logger.With("job", item.Name, "run", run.ID)

	ctx, span := r.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.name", item.Name),
		attribute.String("job.source", item.Source),
		attribute.String("run.id", run.ID),
	))
	defer span.End()

	log.Info("jobs: run started", "source", item.Source)
	r.observer.RunStarted(run)

	client := r.newClient(item.Name, item.Job)
	for _, s := range steps {
		res := r.runStep(ctx, log, client, item, s)
		run.Steps = append(run.Steps, res)
		r.observer.StepFinished(run, res)
	}

	run.finish(r.now())
	span.SetAttributes(attribute.String("run.status", string(run.Status)))
	if run.Status == StatusFailed {
		span.SetStatus(codes.Error, "job failed")
	}
	log.Info("jobs: run finished",
		"status", string(run.Status),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	r.observer.RunFinished(run)
	return run
}

func (r *Runner) runStep(ctx context.Context, log *slog.Logger, client Restic, item WorkItem, s step) StepResult {
	res := StepResult{Step: s.name, StartedAt: r.now()}
	log = log.With("step", string(s.name))

	switch {
	case !s.enabled(item.Job):
		res.Status = StatusSkipped
		log.Debug("jobs: step disabled")
		return res
	case ctx.Err() != nil:
		res.Status = StatusCancelled
		res.Error = context.Cause(ctx).Error()
		log.Warn("jobs: step skipped", "error", context.Cause(ctx))
		return res
	}

	ctx, span := r.tracer.Start(ctx, "job.step", trace.WithAttributes(
		attribute.String("job.step", string(s.name)),
	))
	defer span.End()

	res.Status = StatusSucceeded
	err := s.run(r, ctx, log, client, item, &res)
	res.Duration = r.now().Sub(res.StartedAt)

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		attrs := []any{"error", err}
		if code, ok := restic.ExitCode(err); ok {
			attrs = append(attrs, "exit_code", code)
		}
		log.Error("jobs: step failed", attrs...)
		return res
	}

	span.SetAttributes(attribute.String("step.status", string(res.Status)))
	log.Info("jobs: step finished", "status", string(res.Status), "duration", res.Duration)
	return res
}
