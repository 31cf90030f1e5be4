package gpuprobe

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/devicelab/gpuprobe/accel"
)

// SweepThreadsPerBlock probes how many threads the device schedules in a
// single block. Each candidate T runs the addition kernel over problemSize
// elements as one block of T threads, with upload, kernel, and download
// timed as separate device-synchronized phases.
//
// A rejected launch records the candidate as launch-rejected and the sweep
// moves on. Allocation and transfer failures end the sweep: if three small
// buffers cannot be placed, no later candidate can succeed either. The
// returned error is non-nil only for those fatal failures; the outcome
// recorded for the failing candidate is still included in the result.
//
// Candidates are expected in ascending order. Max tracks the last accepted
// candidate, not a re-verified maximum.
func SweepThreadsPerBlock(dev accel.Device, candidates []int32, problemSize int64, seed int64) (SweepResult, error) {
	var res SweepResult
	if problemSize <= 0 || problemSize > math.MaxInt32 {
		return res, accel.NewInvalidArgError("SweepThreadsPerBlock",
			fmt.Sprintf("problem size %d outside (0, %d]", problemSize, math.MaxInt32))
	}
	rng := rand.New(rand.NewSource(seed))
	for _, t := range candidates {
		logrus.Debugf("Thread sweep: testing block size %d", t)
		out, err := runThreadCandidate(dev, t, problemSize, rng)
		res.Outcomes = append(res.Outcomes, out)
		if err != nil {
			res.Aborted = true
			return res, err
		}
		if out.Succeeded {
			res.Max = t
		} else {
			logrus.Debugf("Thread sweep: block size %d failed (%s)", t, out.Failure)
		}
	}
	return res, nil
}

// runThreadCandidate tests one block size. The returned error is the fatal
// kind only; launch rejection comes back as a failed outcome and a nil
// error. Cleanup failures aggregate into the error and are fatal too.
func runThreadCandidate(dev accel.Device, t int32, n int64, rng *rand.Rand) (out Outcome, err error) {
	bytes := uint64(n) * elementSize
	out = Outcome{
		Candidate:   t,
		ProblemSize: n,
		MemBytes:    bytes * buffersPerProblem,
	}

	rel := &releaseList{}
	defer func() {
		err = multierr.Append(err, rel.release())
		if err != nil && out.Failure == FailureNone {
			out.fail(classifyFailure(err), err)
		}
	}()

	hostA, err := dev.AllocHost(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(hostA.Free)
	hostB, err := dev.AllocHost(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(hostB.Free)
	hostOut, err := dev.AllocHost(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(hostOut.Free)

	fillRandom(hostA.Float32(), rng)
	fillRandom(hostB.Float32(), rng)

	devA, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(devA.Free)
	devB, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(devB.Free)
	devOut, err := dev.AllocDevice(bytes)
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}
	rel.add(devOut.Free)

	uploadMs, err := timePhase(dev, rel, func() error {
		if uerr := dev.Upload(devA, hostA, bytes); uerr != nil {
			return uerr
		}
		return dev.Upload(devB, hostB, bytes)
	})
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}

	// One block of T threads over the full buffer: total parallel
	// capacity equals T regardless of n, which isolates the block-size
	// limit from occupancy. The launch call's own verdict is the only
	// execution check made here.
	kernelMs, kerr := timePhase(dev, rel, func() error {
		return dev.Add(devA, devB, devOut, int32(n),
			accel.Dim3{X: 1, Y: 1, Z: 1}, accel.Dim3{X: t, Y: 1, Z: 1})
	})
	if kerr != nil {
		out.fail(classifyFailure(kerr), kerr)
		return out, nil
	}

	downloadMs, err := timePhase(dev, rel, func() error {
		return dev.Download(hostOut, devOut, bytes)
	})
	if err != nil {
		out.fail(classifyFailure(err), err)
		return out, err
	}

	out.Succeeded = true
	out.Times = PhaseTimes{UploadMs: uploadMs, KernelMs: kernelMs, DownloadMs: downloadMs}
	return out, nil
}

// timePhase brackets op between two device events and returns the elapsed
// milliseconds once the closing event has completed. The events join the
// candidate's release list like any other per-candidate resource.
func timePhase(dev accel.Device, rel *releaseList, op func() error) (float64, error) {
	start, err := dev.NewEvent()
	if err != nil {
		return 0, err
	}
	rel.add(start.Close)
	stop, err := dev.NewEvent()
	if err != nil {
		return 0, err
	}
	rel.add(stop.Close)

	if err := start.Record(); err != nil {
		return 0, err
	}
	if err := op(); err != nil {
		return 0, err
	}
	if err := stop.Record(); err != nil {
		return 0, err
	}
	if err := stop.Synchronize(); err != nil {
		return 0, err
	}
	return stop.Since(start)
}

func fillRandom(dst []float32, rng *rand.Rand) {
	for i := range dst {
		dst[i] = rng.Float32()
	}
}
