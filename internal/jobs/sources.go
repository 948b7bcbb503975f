package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// driveKind classifies a mounted volume by the media behind it.
type driveKind int

const (
	driveUnknown driveKind = iota
	driveFixed
	driveRemovable
	driveRemote
	driveOptical
)

// skippedFSTypes are file systems that never back a fixed drive: optical
// media, read-only images and network shares. Keys are lowercase.
var skippedFSTypes = map[string]struct{}{
	"iso9660":    {},
	"udf":        {},
	"cdfs":       {},
	"squashfs":   {},
	"nfs":        {},
	"nfs4":       {},
	"cifs":       {},
	"smbfs":      {},
	"smb3":       {},
	"sshfs":      {},
	"fuse.sshfs": {},
	"9p":         {},
	"afpfs":      {},
	"webdav":     {},
}

// FixedDrives returns the mount points of the mounted non-removable local
// volumes.
func FixedDrives(ctx context.Context) ([]string, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("jobs: listing partitions: %w", err)
	}
	return fixedMounts(parts, driveKindOf), nil
}

// fixedMounts keeps the partitions kindOf reports as fixed, in order and
// without duplicate mount points.
func fixedMounts(parts []disk.PartitionStat, kindOf func(disk.PartitionStat) driveKind) []string {
	var out []string
	for _, p := range parts {
		if p.Mountpoint == "" || p.Fstype == "" {
			continue
		}
		if _, skip := skippedFSTypes[strings.ToLower(p.Fstype)]; skip {
			continue
		}
		if kindOf(p) != driveFixed {
			continue
		}
		if slices.Contains(out, p.Mountpoint) {
			continue
		}
		out = append(out, p.Mountpoint)
	}
	return out
}

// resolveSources keeps every configured path that exists and resolves.
// Unresolvable paths are dropped with a warning. When fixedDrives is not
// nil its result is appended.
func resolveSources(ctx context.Context, logger *slog.Logger, configured []string, fixedDrives func(context.Context) ([]string, error)) []string {
	out := make([]string, 0, len(configured))
	for _, path := range configured {
		if err := checkSource(path); err != nil {
			logger.Warn("jobs: dropping backup source", "path", path, "error", err)
			continue
		}
		if !slices.Contains(out, path) {
			out = append(out, path)
		}
	}

	if fixedDrives != nil {
		drives, err := fixedDrives(ctx)
		if err != nil {
			logger.Warn("jobs: could not list fixed drives", "error", err)
		}
		for _, d := range drives {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func checkSource(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return err
	}
	_, err = os.Stat(resolved)
	return err
}
