package restic

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// BackupOptions maps to "restic backup" flags.
type BackupOptions struct {
	// OneFileSystem keeps the backup on the file systems of the sources.
	// Ignored on Windows, where restic does not support it.
	OneFileSystem bool

	// UseFSSnapshot requests a VSS snapshot. Only honored on Windows.
	UseFSSnapshot bool

	Verbose       bool
	CleanupCache  bool
	ExcludeCaches bool

	// AdditionalFlags are passed as-is after a "--" prefix, e.g.
	// "exclude=/tmp" becomes "--exclude=/tmp".
	AdditionalFlags []string
}

// Args renders the options and sources into a backup command line.
func (o BackupOptions) Args(paths []string) *Args {
	args := NewArgs("backup")
	if o.OneFileSystem && runtime.GOOS != "windows" {
		args.Flag("one-file-system")
	}
	if o.UseFSSnapshot && runtime.GOOS == "windows" {
		args.Flag("use-fs-snapshot")
	}
	if o.Verbose {
		args.Flag("verbose")
	}
	if o.CleanupCache {
		args.Flag("cleanup-cache")
	}
	if o.ExcludeCaches {
		args.Flag("exclude-caches")
	}
	AddFlags(args, o.AdditionalFlags)
	return args.Values(paths...)
}

// AddFlags adds free-form flags. Leading dashes are optional.
func AddFlags(args *Args, flags []string) {
	for _, f := range flags {
		if name := strings.TrimLeft(strings.TrimSpace(f), "-"); name != "" {
			args.Flag(name)
		}
	}
}

// BackupResult is the outcome of a successful backup.
type BackupResult struct {
	// PartialRead is set when restic exited with code 3: the snapshot was
	// created but some source files could not be read.
	PartialRead bool
	Summary     *Summary
}

// Backup snapshots paths. Every decoded message is passed to onMessage,
// which may be nil.
//
// Exactly one summary message is required. Exit code 3 with a summary is
// reported as a result with PartialRead set rather than as an error.
func (c *Client) Backup(ctx context.Context, paths []string, opts BackupOptions, onMessage func(Message)) (*BackupResult, error) {
	var summaries []*Summary

	err := c.ExecJSON(ctx, opts.Args(paths), BackupVariants, func(msg Message) {
		switch m := msg.(type) {
		case *Summary:
			summaries = append(summaries, m)
		case *Status:
			c.logger.Debug("restic: backup status",
				"percent_done", m.PercentDone,
				"files_done", m.FilesDone,
				"total_files", m.TotalFiles,
			)
		case *VerboseStatus:
			c.logger.Debug("restic: backup item", "action", m.Action, "item", m.Item)
		case *BackupError:
			c.logger.Warn("restic: backup error",
				"during", m.During,
				"item", m.Item,
				"error", m.Error.Message,
			)
		case *ExitMessage:
			c.logger.Warn("restic: exiting with error", "exit_code", m.Code, "message", m.Message)
		}
		if onMessage != nil {
			onMessage(msg)
		}
	})

	partial := errors.Is(err, ErrPartialRead)
	if err != nil && !partial {
		return nil, err
	}

	switch len(summaries) {
	case 1:
		return &BackupResult{PartialRead: partial, Summary: summaries[0]}, nil
	case 0:
		return nil, errors.Join(fmt.Errorf("%w: backup did not return a summary", ErrUnexpectedResponse), err)
	default:
		return nil, errors.Join(fmt.Errorf("%w: backup returned %d summaries", ErrUnexpectedResponse, len(summaries)), err)
	}
}
