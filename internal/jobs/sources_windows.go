//go:build windows

package jobs

import (
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/windows"
)

func driveKindOf(p disk.PartitionStat) driveKind {
	root, err := windows.UTF16PtrFromString(strings.TrimSuffix(p.Mountpoint, `\`) + `\`)
	if err != nil {
		return driveUnknown
	}
	return windowsDriveKind(windows.GetDriveType(root))
}

func windowsDriveKind(driveType uint32) driveKind {
	switch driveType {
	case windows.DRIVE_FIXED:
		return driveFixed
	case windows.DRIVE_REMOVABLE:
		return driveRemovable
	case windows.DRIVE_REMOTE:
		return driveRemote
	case windows.DRIVE_CDROM:
		return driveOptical
	default:
		return driveUnknown
	}
}
