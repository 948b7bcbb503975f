//go:build !linux && !windows

package jobs

import (
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// driveKindOf only tells local devices from the rest here; removable media
// are left to the file system filter.
func driveKindOf(p disk.PartitionStat) driveKind {
	if !strings.HasPrefix(p.Device, "/dev/") {
		return driveRemote
	}
	return driveFixed
}
