package gpuprobe

import "math"

const (
	// DefaultProblemSize is the element count for every thread-block sweep
	// candidate. Deliberately small: block size, not memory, is under test.
	DefaultProblemSize = 1 << 20

	// DefaultMemoryCeiling bounds the three-buffer footprint of a grid
	// sweep candidate. Conservative, well under typical device memory, so
	// the sweep probes launch limits rather than allocation limits.
	DefaultMemoryCeiling = 512 << 20

	// DefaultSeed feeds host input generation.
	DefaultSeed = 42

	// elementSize is the width of one float32 element.
	elementSize = 4

	// buffersPerProblem counts buffers per candidate: two inputs, one output.
	buffersPerProblem = 3

	// hostInitPrefix caps how many elements of each host input the grid
	// sweep initializes. At grid scale only launch and execution are under
	// test, not arithmetic over the full extent.
	hostInitPrefix = 1 << 20
)

// DefaultThreadCandidates returns the block sizes under test: the range real
// devices accept plus two values past the architectural limit of current
// hardware.
func DefaultThreadCandidates() []int32 {
	return []int32{128, 256, 512, 768, 1024, 1536, 2048}
}

// DefaultBlockCandidates returns the grid sizes under test, walking the X
// dimension up to the signed 32-bit boundary. The final entry is a wrapped
// 1<<31 and exercises the non-positive guard.
func DefaultBlockCandidates() []int32 {
	return []int32{1, 32, 256, 4096, 65535, 1 << 20, 1 << 24, 1 << 28, math.MaxInt32, math.MinInt32}
}
