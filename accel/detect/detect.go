// Package detect enumerates NVIDIA GPUs through the management library so
// the CLI can pick a backend before committing to a CUDA context. Discovery
// is best-effort: on platforms without NVML the package reports no devices
// rather than failing the build.
package detect

// GPU describes one device visible to the management library.
type GPU struct {
	Index         int    `yaml:"index"`
	Name          string `yaml:"name"`
	UUID          string `yaml:"uuid"`
	MemoryBytes   uint64 `yaml:"memory_bytes"`
	ComputeMajor  int    `yaml:"compute_major"`
	ComputeMinor  int    `yaml:"compute_minor"`
	DriverVersion string `yaml:"driver_version"`
}
