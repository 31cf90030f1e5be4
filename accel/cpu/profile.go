package cpu

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/devicelab/gpuprobe/accel"
)

// Profile describes the limits a software device enforces: launch geometry
// it will schedule, device memory it will hand out, and host memory it will
// permit for staging buffers. A Device behaves exactly as the profile says,
// which makes every sweep behavior reproducible without hardware.
type Profile struct {
	Name                string   `yaml:"name"`
	ComputeMajor        int      `yaml:"compute_major"`
	ComputeMinor        int      `yaml:"compute_minor"`
	TotalGlobalMem      uint64   `yaml:"total_global_mem"`
	HostMemLimit        uint64   `yaml:"host_mem_limit"`
	MaxThreadsPerBlock  int32    `yaml:"max_threads_per_block"`
	MaxGridDim          [3]int32 `yaml:"max_grid_dim"`
	WarpSize            int32    `yaml:"warp_size"`
	MultiprocessorCount int32    `yaml:"multiprocessor_count"`
	MaxThreadsPerMP     int32    `yaml:"max_threads_per_mp"`
}

// Props returns the capability record a device opened with this profile
// reports.
func (p Profile) Props() accel.DeviceProps {
	return accel.DeviceProps{
		Name:                p.Name,
		ComputeMajor:        p.ComputeMajor,
		ComputeMinor:        p.ComputeMinor,
		TotalGlobalMem:      p.TotalGlobalMem,
		MaxThreadsPerBlock:  p.MaxThreadsPerBlock,
		MaxGridDim:          p.MaxGridDim,
		WarpSize:            p.WarpSize,
		MultiprocessorCount: p.MultiprocessorCount,
		MaxThreadsPerMP:     p.MaxThreadsPerMP,
	}
}

// Validate reports whether the profile describes an openable device.
func (p Profile) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("profile has no name")
	case p.TotalGlobalMem == 0:
		return fmt.Errorf("profile %q: total_global_mem must be positive", p.Name)
	case p.MaxThreadsPerBlock <= 0:
		return fmt.Errorf("profile %q: max_threads_per_block must be positive", p.Name)
	case p.MaxGridDim[0] <= 0 || p.MaxGridDim[1] <= 0 || p.MaxGridDim[2] <= 0:
		return fmt.Errorf("profile %q: max_grid_dim components must be positive", p.Name)
	case p.WarpSize <= 0:
		return fmt.Errorf("profile %q: warp_size must be positive", p.Name)
	case p.MultiprocessorCount <= 0:
		return fmt.Errorf("profile %q: multiprocessor_count must be positive", p.Name)
	case p.MaxThreadsPerMP <= 0:
		return fmt.Errorf("profile %q: max_threads_per_mp must be positive", p.Name)
	}
	return nil
}

// HostProfile derives a device profile from the running machine: one
// multiprocessor per CPU core, two hardware threads per core, and the
// machine's physical memory as device memory. The launch geometry limits
// mirror what discrete accelerators commonly report.
func HostProfile() Profile {
	mem := systemMemory()
	return Profile{
		Name:                hostDeviceName(),
		ComputeMajor:        1,
		ComputeMinor:        0,
		TotalGlobalMem:      mem,
		HostMemLimit:        mem,
		MaxThreadsPerBlock:  1024,
		MaxGridDim:          [3]int32{2147483647, 65535, 65535},
		WarpSize:            32,
		MultiprocessorCount: int32(runtime.NumCPU()),
		MaxThreadsPerMP:     2,
	}
}

// presets are profiles modeled on real discrete GPUs, for reproducing a
// specific device's limit behavior on any machine.
var presets = map[string]Profile{
	"k40": {
		Name:                "Tesla K40",
		ComputeMajor:        3,
		ComputeMinor:        5,
		TotalGlobalMem:      12 * 1024 * 1024 * 1024,
		HostMemLimit:        16 * 1024 * 1024 * 1024,
		MaxThreadsPerBlock:  1024,
		MaxGridDim:          [3]int32{2147483647, 65535, 65535},
		WarpSize:            32,
		MultiprocessorCount: 15,
		MaxThreadsPerMP:     2048,
	},
	"v100": {
		Name:                "Tesla V100-SXM2-16GB",
		ComputeMajor:        7,
		ComputeMinor:        0,
		TotalGlobalMem:      16 * 1024 * 1024 * 1024,
		HostMemLimit:        32 * 1024 * 1024 * 1024,
		MaxThreadsPerBlock:  1024,
		MaxGridDim:          [3]int32{2147483647, 65535, 65535},
		WarpSize:            32,
		MultiprocessorCount: 80,
		MaxThreadsPerMP:     2048,
	},
	"rtx4090": {
		Name:                "GeForce RTX 4090",
		ComputeMajor:        8,
		ComputeMinor:        9,
		TotalGlobalMem:      24 * 1024 * 1024 * 1024,
		HostMemLimit:        32 * 1024 * 1024 * 1024,
		MaxThreadsPerBlock:  1024,
		MaxGridDim:          [3]int32{2147483647, 65535, 65535},
		WarpSize:            32,
		MultiprocessorCount: 128,
		MaxThreadsPerMP:     1536,
	},
}

// Presets returns the names of the built-in device profiles, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadProfile reads a device profile from a YAML file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.HostMemLimit == 0 {
		p.HostMemLimit = systemMemory()
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ResolveProfile maps a name to a profile: the empty string selects the
// host-derived profile, a preset name selects that preset, and anything
// else is treated as a path to a profile YAML file.
func ResolveProfile(name string) (Profile, error) {
	if name == "" {
		return HostProfile(), nil
	}
	if p, ok := presets[name]; ok {
		return p, nil
	}
	return LoadProfile(name)
}
