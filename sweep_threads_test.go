package gpuprobe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/gpuprobe/accel"
)

func TestSweepThreadsStopsAtLimit(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	candidates := DefaultThreadCandidates()
	const n = 1 << 10

	res, err := SweepThreadsPerBlock(dev, candidates, n, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, len(candidates))
	assert.False(t, res.Aborted)
	assert.Equal(t, int32(1024), res.Max)

	for i, o := range res.Outcomes {
		if candidates[i] <= 1024 {
			assert.True(t, o.Succeeded, "candidate %d should succeed", candidates[i])
			assert.Equal(t, FailureNone, o.Failure)
			assert.GreaterOrEqual(t, o.Times.UploadMs, 0.0)
			assert.GreaterOrEqual(t, o.Times.KernelMs, 0.0)
			assert.GreaterOrEqual(t, o.Times.DownloadMs, 0.0)
		} else {
			assert.False(t, o.Succeeded, "candidate %d should be rejected", candidates[i])
			assert.Equal(t, FailureLaunchRejected, o.Failure)
			assert.NotEmpty(t, o.Error)
		}
		assert.Equal(t, int64(n), o.ProblemSize)
		assert.Equal(t, uint64(n*4*3), o.MemBytes)
	}

	assert.NoError(t, dev.leaks())
}

// Every candidate launches exactly one block over the full problem; the
// element count is never trimmed to the block size.
func TestSweepThreadsLaunchGeometry(t *testing.T) {
	dev := newFakeDevice(2048, math.MaxInt32)
	candidates := []int32{128, 512, 2048}
	const n = 4096

	_, err := SweepThreadsPerBlock(dev, candidates, n, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, dev.launches, len(candidates))

	for i, l := range dev.launches {
		assert.Equal(t, accel.Dim3{X: 1, Y: 1, Z: 1}, l.grid)
		assert.Equal(t, accel.Dim3{X: candidates[i], Y: 1, Z: 1}, l.block)
		assert.Equal(t, int32(n), l.n)
	}

	// Execution is never verified in this sweep: the launch verdict is
	// taken at face value and no device synchronization happens.
	assert.Zero(t, dev.syncs)
}

func TestSweepThreadsFatalHostAllocation(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	dev.hostAllocErr = accel.NewHostAllocError("AllocHost", "scripted exhaustion", nil)

	res, err := SweepThreadsPerBlock(dev, DefaultThreadCandidates(), 1<<10, DefaultSeed)
	require.Error(t, err)
	assert.True(t, accel.IsHostAlloc(err))
	assert.True(t, res.Aborted)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, FailureHostAllocFailed, res.Outcomes[0].Failure)
	assert.Zero(t, res.Max)
	assert.NoError(t, dev.leaks())
}

func TestSweepThreadsFatalDeviceAllocation(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	dev.deviceAllocErr = accel.NewDeviceAllocError("AllocDevice", "scripted exhaustion", nil)

	res, err := SweepThreadsPerBlock(dev, []int32{128, 256}, 1<<10, DefaultSeed)
	require.Error(t, err)
	assert.True(t, res.Aborted)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, FailureDeviceAllocFailed, res.Outcomes[0].Failure)
	assert.NoError(t, dev.leaks(), "host buffers must be released on the fatal path")
}

func TestSweepThreadsFatalUpload(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	dev.uploadErr = accel.NewTransferError("Upload", "scripted failure", nil)

	res, err := SweepThreadsPerBlock(dev, []int32{128}, 1<<10, DefaultSeed)
	require.Error(t, err)
	assert.True(t, res.Aborted)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, FailureUploadFailed, res.Outcomes[0].Failure)
	assert.NoError(t, dev.leaks())
}

// A launch failure that is not a rejection still only costs that candidate.
func TestSweepThreadsLaunchFaultContinues(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)
	dev.launchErr = accel.NewExecutionError("Add", "scripted fault", nil)

	res, err := SweepThreadsPerBlock(dev, []int32{128, 256}, 1<<10, DefaultSeed)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	require.Len(t, res.Outcomes, 2)
	for _, o := range res.Outcomes {
		assert.Equal(t, FailureExecutionFailed, o.Failure)
	}
	assert.Zero(t, res.Max)
	assert.NoError(t, dev.leaks())
}

func TestSweepThreadsProblemSizeBounds(t *testing.T) {
	dev := newFakeDevice(1024, math.MaxInt32)

	for _, n := range []int64{0, -1, math.MaxInt32 + 1} {
		res, err := SweepThreadsPerBlock(dev, DefaultThreadCandidates(), n, DefaultSeed)
		require.Error(t, err, "problem size %d", n)
		assert.True(t, accel.IsInvalidArg(err))
		assert.Empty(t, res.Outcomes)
	}
}
