//go:build linux

package cpu

import "golang.org/x/sys/unix"

// systemMemory returns total physical memory in bytes.
func systemMemory() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return defaultSystemMemory
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}
