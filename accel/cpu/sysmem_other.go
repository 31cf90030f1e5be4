//go:build !linux

package cpu

// systemMemory returns total physical memory in bytes. Platforms without a
// sysinfo call get a conservative default.
func systemMemory() uint64 {
	return defaultSystemMemory
}
