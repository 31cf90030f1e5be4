package cpu

import (
	"fmt"
	"sync"

	"github.com/devicelab/gpuprobe/accel"
)

// ThreadID identifies a thread's position within the launch hierarchy.
// It provides the same indexing semantics as native kernels' built-in
// variables: block index, thread index, block dimensions, grid dimensions.
type ThreadID struct {
	BlockIdx  accel.Dim3
	ThreadIdx accel.Dim3
	BlockDim  accel.Dim3
	GridDim   accel.Dim3
}

// GlobalX returns the global X index. The result is widened to int64: the
// last thread of a full-width grid indexes past the int32 range mid-product.
func (tid ThreadID) GlobalX() int64 {
	return int64(tid.BlockIdx.X)*int64(tid.BlockDim.X) + int64(tid.ThreadIdx.X)
}

// KernelFunc is executed once per logical thread of a launch. Implementations
// must be safe for concurrent calls: blocks run in parallel across workers,
// threads within one block run sequentially.
type KernelFunc func(tid ThreadID)

// Launch schedules fn over a grid of blocks. The configuration is validated
// synchronously: geometry the profile will not schedule is rejected on the
// call. Accepted launches execute asynchronously on the device stream; a
// kernel that panics surfaces as an execution error on the next Synchronize.
func (d *Device) Launch(fn KernelFunc, grid, block accel.Dim3) error {
	if d.isClosed() {
		return accel.ErrClosed
	}
	if err := d.checkLaunch(grid, block); err != nil {
		return err
	}
	d.launchAsync(fn, grid, block)
	return nil
}

// checkLaunch validates a launch configuration against the profile, the
// same check a native runtime performs when the launch is issued.
func (d *Device) checkLaunch(grid, block accel.Dim3) error {
	if block.X <= 0 || block.Y <= 0 || block.Z <= 0 {
		return accel.NewLaunchRejectedError("Launch",
			fmt.Sprintf("invalid block dimensions %d x %d x %d", block.X, block.Y, block.Z), nil)
	}
	if grid.X <= 0 || grid.Y <= 0 || grid.Z <= 0 {
		return accel.NewLaunchRejectedError("Launch",
			fmt.Sprintf("invalid grid dimensions %d x %d x %d", grid.X, grid.Y, grid.Z), nil)
	}
	if threads := block.Size(); threads > int64(d.profile.MaxThreadsPerBlock) {
		return accel.NewLaunchRejectedError("Launch",
			fmt.Sprintf("requested block size %d exceeds device limit %d",
				threads, d.profile.MaxThreadsPerBlock), nil)
	}
	lim := d.profile.MaxGridDim
	if grid.X > lim[0] || grid.Y > lim[1] || grid.Z > lim[2] {
		return accel.NewLaunchRejectedError("Launch",
			fmt.Sprintf("requested grid dimensions %d x %d x %d exceed device limits %d x %d x %d",
				grid.X, grid.Y, grid.Z, lim[0], lim[1], lim[2]), nil)
	}
	return nil
}

// launchAsync shards the grid's blocks across worker goroutines. Each worker
// processes a contiguous range of blocks and runs the threads of a block
// sequentially, which maximizes cache reuse on the host.
func (d *Device) launchAsync(fn KernelFunc, grid, block accel.Dim3) {
	gridSize := grid.Size()
	blockSize := block.Size()

	numWorkers := int64(d.workers)
	if gridSize < numWorkers {
		numWorkers = gridSize
	}
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	d.stream.submit(func() {
		var wg sync.WaitGroup
		wg.Add(int(numWorkers))

		for w := int64(0); w < numWorkers; w++ {
			startBlock := w * blocksPerWorker
			endBlock := startBlock + blocksPerWorker
			if endBlock > gridSize {
				endBlock = gridSize
			}

			go func(startBlock, endBlock int64) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						d.stream.setExecErr(accel.NewExecutionError("Launch",
							fmt.Sprintf("kernel panicked: %v", r), nil))
					}
				}()

				for blockID := startBlock; blockID < endBlock; blockID++ {
					blockIdx := linearTo3D(blockID, grid)
					for threadID := int64(0); threadID < blockSize; threadID++ {
						fn(ThreadID{
							BlockIdx:  blockIdx,
							ThreadIdx: linearTo3D(threadID, block),
							BlockDim:  block,
							GridDim:   grid,
						})
					}
				}
			}(startBlock, endBlock)
		}

		wg.Wait()
	})
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int64, dim accel.Dim3) accel.Dim3 {
	plane := int64(dim.X) * int64(dim.Y)
	return accel.Dim3{
		X: int32(linear % int64(dim.X)),
		Y: int32((linear % plane) / int64(dim.X)),
		Z: int32(linear / plane),
	}
}
