package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/restic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ptr[T any](v T) *T { return &v }

// fakeRestic records calls and returns canned results.
type fakeRestic struct {
	mu    sync.Mutex
	calls []string

	exists     bool
	canOpenErr error
	initErr    error

	backupResult *restic.BackupResult
	backupErr    error
	backupPaths  []string
	backupOpts   restic.BackupOptions

	lockIDs   []string
	lockIDErr error
	unlockErr error

	forgetErr  error
	forgetOpts restic.ForgetOptions
}

var _ Restic = (*fakeRestic)(nil)

func (f *fakeRestic) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRestic) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRestic) CanOpen(context.Context) (bool, error) {
	f.record("can_open")
	return f.exists, f.canOpenErr
}

func (f *fakeRestic) Init(context.Context) (*restic.Initialized, error) {
	f.record("init")
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.exists = true
	return &restic.Initialized{ID: "5f4dcc3b5aa7"}, nil
}

func (f *fakeRestic) Backup(_ context.Context, paths []string, opts restic.BackupOptions, _ func(restic.Message)) (*restic.BackupResult, error) {
	f.record("backup")
	f.backupPaths = paths
	f.backupOpts = opts
	if f.backupErr != nil {
		return nil, f.backupErr
	}
	if f.backupResult != nil {
		return f.backupResult, nil
	}
	return &restic.BackupResult{Summary: &restic.Summary{SnapshotID: "a1b2c3d4"}}, nil
}

func (f *fakeRestic) LockIDs(context.Context) ([]string, error) {
	f.record("lock_ids")
	return f.lockIDs, f.lockIDErr
}

func (f *fakeRestic) Lock(_ context.Context, id string) (*restic.LockInfo, error) {
	f.record("lock")
	return &restic.LockInfo{ID: id, Hostname: "nas", PID: 42}, nil
}

func (f *fakeRestic) Unlock(context.Context, bool) error {
	f.record("unlock")
	return f.unlockErr
}

func (f *fakeRestic) Forget(_ context.Context, opts restic.ForgetOptions) error {
	f.record("forget")
	f.forgetOpts = opts
	return f.forgetErr
}

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	mu       sync.Mutex
	queued   []WorkItem
	rejected []error
	started  []string
	steps    []StepResult
	finished []*Run
}

var _ Observer = (*recorder)(nil)

func (r *recorder) Queued(item WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, item)
}

func (r *recorder) Rejected(_, _ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, err)
}

func (r *recorder) RunStarted(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, run.Job)
}

func (r *recorder) StepFinished(_ *Run, step StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) RunFinished(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run)
}

func testJob(sources ...string) config.Job {
	return config.Job{
		Cron:       "0 2 * * *",
		Repository: config.Repository{URL: "/srv/restic", Password: "hunter22"},
		Backup: config.BackupStep{
			Sources:       sources,
			OneFileSystem: ptr(true),
			UseFSSnapshot: ptr(true),
		},
		ClearLocks: config.LocksStep{Enabled: ptr(true)},
	}
}

func newTestRunner(client Restic, obs Observer) *Runner {
	return NewRunner(RunnerConfig{
		NewClient: func(string, config.Job) Restic { return client },
		FixedDrives: func(context.Context) ([]string, error) {
			return nil, nil
		},
		Logger:   discardLogger(),
		Observer: obs,
	})
}

func item(name string, job config.Job) WorkItem {
	return WorkItem{Name: name, Job: job, Source: SourceManual, QueuedAt: time.Now()}
}
