package gpuprobe

import (
	"github.com/sirupsen/logrus"

	"github.com/devicelab/gpuprobe/accel"
)

// Options configure a probe run. The zero value reproduces the fixed
// procedure: compiled-in candidate lists, a 1<<20-element thread-sweep
// problem, a 512 MiB memory ceiling, and seed 42.
type Options struct {
	// Seed for the host input generator. 0 selects DefaultSeed.
	Seed int64
	// ThreadCandidates are block sizes for the thread-block sweep, in
	// ascending order.
	ThreadCandidates []int32
	// BlockCandidates are grid sizes for the grid sweep, in ascending
	// order. Non-positive entries are skipped at sweep time.
	BlockCandidates []int32
	// ProblemSize is the element count for thread-sweep candidates.
	ProblemSize int64
	// MemoryCeiling bounds each grid candidate's three-buffer footprint,
	// in bytes.
	MemoryCeiling uint64
}

func (o Options) withDefaults() Options {
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if len(o.ThreadCandidates) == 0 {
		o.ThreadCandidates = DefaultThreadCandidates()
	}
	if len(o.BlockCandidates) == 0 {
		o.BlockCandidates = DefaultBlockCandidates()
	}
	if o.ProblemSize <= 0 {
		o.ProblemSize = DefaultProblemSize
	}
	if o.MemoryCeiling == 0 {
		o.MemoryCeiling = DefaultMemoryCeiling
	}
	return o
}

// Run executes the full probe against one device: thread-block sweep, grid
// sweep at the device's reported block-size limit, and the theoretical
// derivation. The error is non-nil only for thread-sweep-fatal allocation
// or transfer failures; per-candidate failures and a grid-sweep abort are
// recorded in the report instead.
func Run(dev accel.Device, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	props := dev.Props()

	threadSweep, err := SweepThreadsPerBlock(dev, opts.ThreadCandidates, opts.ProblemSize, opts.Seed)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Thread sweep done: max block size %d", threadSweep.Max)

	gridThreads := props.MaxThreadsPerBlock
	gridSweep := SweepBlocksPerGrid(dev, opts.BlockCandidates, gridThreads, opts.MemoryCeiling, opts.Seed)
	logrus.Debugf("Grid sweep done: max %d blocks, aborted=%v", gridSweep.Max, gridSweep.Aborted)

	return &Report{
		Props:               props,
		ThreadSweep:         threadSweep,
		GridSweep:           gridSweep,
		Limits:              ComputeTheoreticalLimits(props),
		ProblemSize:         opts.ProblemSize,
		MemoryCeiling:       opts.MemoryCeiling,
		GridThreadsPerBlock: gridThreads,
	}, nil
}
