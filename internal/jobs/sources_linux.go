//go:build linux

package jobs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

const sysBlockDir = "/sys/class/block"

func driveKindOf(p disk.PartitionStat) driveKind {
	return linuxDriveKind(sysBlockDir, p)
}

// linuxDriveKind reads the removable flag the kernel exposes under
// sysBlock for the partition's device.
func linuxDriveKind(sysBlock string, p disk.PartitionStat) driveKind {
	if !strings.HasPrefix(p.Device, "/dev/") {
		return driveRemote
	}
	dev := p.Device
	if resolved, err := filepath.EvalSymlinks(dev); err == nil {
		dev = resolved
	}
	name := filepath.Base(dev)
	if strings.HasPrefix(name, "sr") {
		return driveOptical
	}
	if removable(sysBlock, name) {
		return driveRemovable
	}
	return driveFixed
}

func removable(sysBlock, name string) bool {
	dir := filepath.Join(sysBlock, name)
	raw, err := os.ReadFile(filepath.Join(dir, "removable"))
	if err != nil {
		// Partitions carry the flag on their parent disk.
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return false
		}
		raw, err = os.ReadFile(filepath.Join(filepath.Dir(resolved), "removable"))
		if err != nil {
			return false
		}
	}
	return strings.TrimSpace(string(raw)) == "1"
}
