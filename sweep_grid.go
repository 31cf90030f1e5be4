package gpuprobe

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/devicelab/gpuprobe/accel"
)

// SweepBlocksPerGrid probes how many blocks the device will execute in one
// launch. Candidates are block counts for the grid X dimension, tested in
// order with threadsPerBlock threads each.
//
// Problem sizing per candidate B: totalElements = B × threadsPerBlock,
// computed in 64 bits, clamped so the three-buffer footprint fits
// ceilingBytes, then capped to the kernel's index range. The launch uses
// min(B, ceil(N/T)) blocks so the grid never outruns the clamped element
// count by more than one block's worth of bounds-checked threads.
//
// Failure policy differs from the thread sweep on purpose: any allocation,
// transfer, launch, or execution failure at this scale signals an exhausted
// resource that no larger candidate will get back, so the first failure
// aborts the whole sweep. Non-positive candidates (wrapped values from
// upstream arithmetic) are skipped without affecting anything.
//
// Execution failures are detected here through an explicit post-launch
// device synchronization; the thread sweep makes no such check.
func SweepBlocksPerGrid(dev accel.Device, candidates []int32, threadsPerBlock int32, ceilingBytes uint64, seed int64) SweepResult {
	var res SweepResult
	maxElems := int64(ceilingBytes / (elementSize * buffersPerProblem))
	if threadsPerBlock <= 0 || maxElems == 0 {
		return res
	}
	rng := rand.New(rand.NewSource(seed))
	for _, b := range candidates {
		if b <= 0 {
			logrus.Debugf("Grid sweep: skipping non-positive candidate %d", b)
			res.Outcomes = append(res.Outcomes, Outcome{Candidate: b, Skipped: true})
			continue
		}
		logrus.Debugf("Grid sweep: testing %d blocks of %d threads", b, threadsPerBlock)
		out := runGridCandidate(dev, b, threadsPerBlock, maxElems, rng)
		res.Outcomes = append(res.Outcomes, out)
		if !out.Succeeded {
			logrus.Debugf("Grid sweep: candidate %d failed (%s), aborting", b, out.Failure)
			res.Aborted = true
			break
		}
		res.Max = b
	}
	return res
}

func runGridCandidate(dev accel.Device, b, t int32, maxElems int64, rng *rand.Rand) (out Outcome) {
	out = Outcome{Candidate: b}

	total := int64(b) * int64(t)
	if total > maxElems {
		total = maxElems
		out.Clamped = true
	}
	if total > math.MaxInt32 {
		total = math.MaxInt32
		out.Clamped = true
	}
	out.ProblemSize = total
	out.MemBytes = uint64(total) * elementSize * buffersPerProblem

	launchBlocks := int64(b)
	if needed := (total + int64(t) - 1) / int64(t); needed < launchBlocks {
		launchBlocks = needed
	}
	out.LaunchBlocks = int32(launchBlocks)

	rel := &releaseList{}
	defer func() {
		if rerr := rel.release(); rerr != nil && out.Succeeded {
			out.fail(classifyFailure(rerr), rerr)
		}
	}()

	bytes := uint64(total) * elementSize

	hostA, err := dev.AllocHost(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	rel.add(hostA.Free)
	hostB, err := dev.AllocHost(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	rel.add(hostB.Free)

	// Only a bounded prefix is initialized. Large candidates test whether
	// the launch executes, not whether every element adds correctly, and
	// touching the full extent would dominate the sweep's runtime.
	prefix := total
	if prefix > hostInitPrefix {
		prefix = hostInitPrefix
	}
	fillRandom(hostA.Float32()[:prefix], rng)
	fillRandom(hostB.Float32()[:prefix], rng)

	devA, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	rel.add(devA.Free)
	devB, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	rel.add(devB.Free)
	devOut, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	rel.add(devOut.Free)

	if err := dev.Upload(devA, hostA, bytes); err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}
	if err := dev.Upload(devB, hostB, bytes); err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}

	kernelMs, err := timePhase(dev, rel, func() error {
		if lerr := dev.Add(devA, devB, devOut, int32(total),
			accel.Dim3{X: out.LaunchBlocks, Y: 1, Z: 1},
			accel.Dim3{X: t, Y: 1, Z: 1}); lerr != nil {
			return lerr
		}
		return dev.Synchronize()
	})
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out
	}

	out.Succeeded = true
	out.Times.KernelMs = kernelMs
	return out
}
