package gpuprobe

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/gpuprobe/accel"
	"github.com/devicelab/gpuprobe/accel/cpu"
)

func TestRunAppliesDefaults(t *testing.T) {
	dev := newFakeDevice(2048, math.MaxInt32)

	report, err := Run(dev, Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(DefaultProblemSize), report.ProblemSize)
	assert.Equal(t, uint64(DefaultMemoryCeiling), report.MemoryCeiling)
	assert.Len(t, report.ThreadSweep.Outcomes, len(DefaultThreadCandidates()))
	assert.Len(t, report.GridSweep.Outcomes, len(DefaultBlockCandidates()))

	// The grid sweep runs at the device's reported block limit, not at
	// the thread sweep's demonstrated maximum.
	assert.Equal(t, int32(2048), report.GridThreadsPerBlock)

	assert.Equal(t, int32(2048), report.ThreadSweep.Max)
	assert.Equal(t, int32(math.MaxInt32), report.GridSweep.Max)
	require.NotNil(t, report.Limits.MaxThreadsTotal)
	assert.NoError(t, dev.leaks())
}

func TestRunSurfacesFatalSweepError(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	dev.hostAllocErr = accel.NewHostAllocError("AllocHost", "scripted exhaustion", nil)

	report, err := Run(dev, Options{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, accel.IsHostAlloc(err))
}

// End to end on the software device: the probe finds exactly the limits the
// profile enforces, and two runs agree on every classification.
func TestRunOnSoftwareDevice(t *testing.T) {
	profile := cpu.Profile{
		Name:                "Probe Test Device",
		ComputeMajor:        3,
		ComputeMinor:        0,
		TotalGlobalMem:      32 << 20,
		HostMemLimit:        32 << 20,
		MaxThreadsPerBlock:  512,
		MaxGridDim:          [3]int32{1024, 64, 64},
		WarpSize:            32,
		MultiprocessorCount: 4,
		MaxThreadsPerMP:     1024,
	}
	dev, err := cpu.Open(profile)
	require.NoError(t, err)
	defer dev.Close()

	opts := Options{
		ThreadCandidates: []int32{128, 256, 512, 768},
		BlockCandidates:  []int32{1, 8, 64, 2048},
		ProblemSize:      1 << 12,
		MemoryCeiling:    1 << 20,
	}

	report, err := Run(dev, opts)
	require.NoError(t, err)

	assert.Equal(t, int32(512), report.ThreadSweep.Max)
	rejected := report.ThreadSweep.Outcomes[3]
	assert.Equal(t, int32(768), rejected.Candidate)
	assert.Equal(t, FailureLaunchRejected, rejected.Failure)

	assert.Equal(t, int32(2048), report.GridSweep.Max)
	assert.False(t, report.GridSweep.Aborted)

	// 2048 blocks of 512 threads overrun the 1 MiB ceiling: 87381
	// elements fit, and 171 blocks cover them.
	last := report.GridSweep.Outcomes[3]
	assert.True(t, last.Clamped)
	assert.Equal(t, int64(87381), last.ProblemSize)
	assert.Equal(t, int32(171), last.LaunchBlocks)

	want := big.NewInt(512)
	want.Mul(want, big.NewInt(1024))
	want.Mul(want, big.NewInt(64))
	want.Mul(want, big.NewInt(64))
	assert.Zero(t, report.Limits.MaxThreadsTotal.Cmp(want))
	assert.Equal(t, int64(4096), report.Limits.MaxConcurrentThreads)

	// Same device, same options: every classification must repeat.
	again, err := Run(dev, opts)
	require.NoError(t, err)
	assert.Equal(t, report.ThreadSweep.Max, again.ThreadSweep.Max)
	assert.Equal(t, report.GridSweep.Max, again.GridSweep.Max)
	for i, o := range report.ThreadSweep.Outcomes {
		assert.Equal(t, o.Succeeded, again.ThreadSweep.Outcomes[i].Succeeded)
		assert.Equal(t, o.Failure, again.ThreadSweep.Outcomes[i].Failure)
	}
	for i, o := range report.GridSweep.Outcomes {
		assert.Equal(t, o.Succeeded, again.GridSweep.Outcomes[i].Succeeded)
		assert.Equal(t, o.ProblemSize, again.GridSweep.Outcomes[i].ProblemSize)
		assert.Equal(t, o.LaunchBlocks, again.GridSweep.Outcomes[i].LaunchBlocks)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, int64(DefaultSeed), opts.Seed)
	assert.Equal(t, int64(DefaultProblemSize), opts.ProblemSize)
	assert.Equal(t, uint64(DefaultMemoryCeiling), opts.MemoryCeiling)
	assert.Equal(t, DefaultThreadCandidates(), opts.ThreadCandidates)
	assert.Equal(t, DefaultBlockCandidates(), opts.BlockCandidates)

	custom := Options{
		Seed:             7,
		ThreadCandidates: []int32{64},
		BlockCandidates:  []int32{2},
		ProblemSize:      100,
		MemoryCeiling:    1 << 16,
	}.withDefaults()
	assert.Equal(t, int64(7), custom.Seed)
	assert.Equal(t, []int32{64}, custom.ThreadCandidates)
	assert.Equal(t, []int32{2}, custom.BlockCandidates)
	assert.Equal(t, int64(100), custom.ProblemSize)
	assert.Equal(t, uint64(1<<16), custom.MemoryCeiling)
}

func TestDefaultCandidatesAscend(t *testing.T) {
	threads := DefaultThreadCandidates()
	for i := 1; i < len(threads); i++ {
		assert.Greater(t, threads[i], threads[i-1])
	}

	// Block candidates ascend through the positive range; the final
	// wrapped value is the only exception and gets skipped at sweep time.
	blocks := DefaultBlockCandidates()
	require.NotEmpty(t, blocks)
	assert.Equal(t, int32(math.MinInt32), blocks[len(blocks)-1])
	for i := 1; i < len(blocks)-1; i++ {
		assert.Greater(t, blocks[i], blocks[i-1])
	}
	assert.Equal(t, int32(math.MaxInt32), blocks[len(blocks)-2])
}
