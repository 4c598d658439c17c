//go:build linux

package internal

import "golang.org/x/sys/unix"

// TotalRAM returns the physical memory size in bytes, or 0 if unknown.
func TotalRAM() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		logger.Warnf("sysinfo failed: %v", err)
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
