package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

// defaultSystemMemory is assumed when the platform cannot report physical
// memory.
const defaultSystemMemory = 16 * 1024 * 1024 * 1024

// hostDeviceName builds a device name from the CPU's SIMD feature set, so
// reports identify what class of machine stood in for an accelerator.
func hostDeviceName() string {
	return fmt.Sprintf("Software Accelerator (%s, %d cores)", simdLevel(), runtime.NumCPU())
}

// simdLevel names the widest vector extension available.
func simdLevel() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "AVX-512"
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		return "AVX2+FMA"
	case cpu.X86.HasAVX:
		return "AVX"
	case cpu.X86.HasSSE41 || cpu.X86.HasSSE42:
		return "SSE4"
	case cpu.ARM64.HasASIMD:
		return "NEON"
	default:
		return "scalar"
	}
}
