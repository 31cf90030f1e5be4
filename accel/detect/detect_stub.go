//go:build !linux || !cgo

package detect

// Probe reports no devices where NVML bindings are unavailable.
func Probe() ([]GPU, error) { return nil, nil }

// Available reports whether at least one GPU responded to discovery.
func Available() bool { return false }
