package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/restic"
)

// ErrNoSources is returned by the backup step when no source survived
// resolution.
var ErrNoSources = errors.New("jobs: no backup source available")

func (r *Runner) backup(ctx context.Context, log *slog.Logger, client Restic, item WorkItem, res *StepResult) error {
	exists, err := client.CanOpen(ctx)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	if !exists {
		log.Info("jobs: repository not found, initializing")
		created, err := client.Init(ctx)
		if err != nil {
			return fmt.Errorf("initializing repository: %w", err)
		}
		log.Info("jobs: repository initialized", "id", created.ID)
	}

	var fixed func(context.Context) ([]string, error)
	if item.Job.Backup.SourceFixedDrives {
		fixed = r.fixedDrives
	}
	paths := resolveSources(ctx, log, item.Job.Backup.Sources, fixed)
	if len(paths) == 0 {
		return ErrNoSources
	}

	result, err := client.Backup(ctx, paths, backupOptions(item.Job.Backup), nil)
	if err != nil {
		return err
	}

	res.SnapshotID = result.Summary.SnapshotID
	if result.PartialRead {
		res.Status = StatusDegraded
		res.Error = restic.ErrPartialRead.Error()
		log.Warn("jobs: backup completed with unreadable files", "snapshot", res.SnapshotID)
	}
	log.Info("jobs: snapshot created",
		"snapshot", res.SnapshotID,
		"files_new", result.Summary.FilesNew,
		"files_changed", result.Summary.FilesChanged,
		"data_added", result.Summary.DataAdded,
	)
	return nil
}

func (r *Runner) clearLocks(ctx context.Context, log *slog.Logger, client Restic, _ WorkItem, res *StepResult) error {
	exists, err := client.CanOpen(ctx)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	if !exists {
		log.Debug("jobs: repository not found, no locks to clear")
		return nil
	}

	ids, err := client.LockIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing locks: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		l, err := client.Lock(ctx, id)
		if err != nil {
			log.Warn("jobs: could not read lock", "id", id, "error", err)
			continue
		}
		log.Info("jobs: found lock",
			"id", id,
			"host", l.Hostname,
			"pid", l.PID,
			"exclusive", l.Exclusive,
			"created", l.Time,
		)
	}

	// Unlock only removes stale locks; a failure does not fail the job.
	if err := client.Unlock(ctx, false); err != nil {
		res.Status = StatusDegraded
		res.Error = err.Error()
		log.Warn("jobs: removing locks failed", "error", err)
		return nil
	}
	log.Info("jobs: stale locks removed", "count", len(ids))
	return nil
}

func (r *Runner) forget(ctx context.Context, log *slog.Logger, client Restic, item WorkItem, _ *StepResult) error {
	opts := forgetOptions(item.Job.Forget)
	if err := client.Forget(ctx, opts); err != nil {
		return err
	}
	log.Info("jobs: retention policy applied", "prune", opts.Prune, "dry_run", opts.DryRun)
	return nil
}

func backupOptions(b config.BackupStep) restic.BackupOptions {
	return restic.BackupOptions{
		OneFileSystem:   b.OneFileSystem == nil || *b.OneFileSystem,
		UseFSSnapshot:   b.UseFSSnapshot == nil || *b.UseFSSnapshot,
		Verbose:         b.Verbose,
		CleanupCache:    b.CleanupCache,
		ExcludeCaches:   b.ExcludeCaches,
		AdditionalFlags: b.AdditionalFlags,
	}
}

func forgetOptions(f config.ForgetStep) restic.ForgetOptions {
	return restic.ForgetOptions{
		KeepLast:             f.KeepLast,
		KeepHourly:           f.KeepHourly,
		KeepDaily:            f.KeepDaily,
		KeepWeekly:           f.KeepWeekly,
		KeepMonthly:          f.KeepMonthly,
		KeepYearly:           f.KeepYearly,
		KeepWithin:           f.KeepWithin,
		KeepWithinHourly:     f.KeepWithinHourly,
		KeepWithinDaily:      f.KeepWithinDaily,
		KeepWithinWeekly:     f.KeepWithinWeekly,
		KeepWithinMonthly:    f.KeepWithinMonthly,
		KeepWithinYearly:     f.KeepWithinYearly,
		KeepTags:             f.KeepTags,
		GroupBy:              f.GroupBy,
		Hosts:                f.Hosts,
		Tags:                 f.Tags,
		Paths:                f.Paths,
		UnsafeAllowRemoveAll: f.UnsafeAllowRemoveAll,
		Compact:              f.Compact,
		DryRun:               f.DryRun,
		Prune:                f.Prune,
		MaxUnused:            f.MaxUnused,
		MaxRepackSize:        f.MaxRepackSize,
		RepackCacheableOnly:  f.RepackCacheableOnly,
		RepackSmall:          f.RepackSmall,
		RepackUncompressed:   f.RepackUncompressed,
		RepackSmallerThan:    f.RepackSmallerThan,
		AdditionalFlags:      f.AdditionalFlags,
	}
}
