package gpuprobe

import (
	"errors"

	"github.com/devicelab/gpuprobe/accel"
)

// FailureKind classifies why a sweep candidate did not succeed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureLaunchRejected
	FailureExecutionFailed
	FailureHostAllocFailed
	FailureDeviceAllocFailed
	FailureUploadFailed
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureLaunchRejected:
		return "launch-rejected"
	case FailureExecutionFailed:
		return "execution-failed"
	case FailureHostAllocFailed:
		return "host-allocation-failed"
	case FailureDeviceAllocFailed:
		return "device-allocation-failed"
	case FailureUploadFailed:
		return "upload-failed"
	default:
		return "unknown"
	}
}

// MarshalYAML emits the kind in its string form.
func (k FailureKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// PhaseTimes holds the timed phases of one candidate, in milliseconds. The
// grid sweep populates only the kernel phase.
type PhaseTimes struct {
	UploadMs   float64 `yaml:"upload_ms"`
	KernelMs   float64 `yaml:"kernel_ms"`
	DownloadMs float64 `yaml:"download_ms"`
}

// Outcome records the result of testing one sweep candidate.
type Outcome struct {
	Candidate    int32       `yaml:"candidate"`
	Succeeded    bool        `yaml:"succeeded"`
	Skipped      bool        `yaml:"skipped,omitempty"`
	Times        PhaseTimes  `yaml:"times,omitempty"`
	Failure      FailureKind `yaml:"failure,omitempty"`
	Error        string      `yaml:"error,omitempty"`
	ProblemSize  int64       `yaml:"problem_size,omitempty"`
	MemBytes     uint64      `yaml:"memory_bytes,omitempty"`
	Clamped      bool        `yaml:"clamped,omitempty"`
	LaunchBlocks int32       `yaml:"launch_blocks,omitempty"`
}

func (o *Outcome) fail(kind FailureKind, err error) {
	o.Succeeded = false
	o.Failure = kind
	o.Error = err.Error()
}

// SweepResult aggregates one sweep. Max is 0 when no candidate succeeded,
// otherwise the last candidate that did; with candidates in ascending order
// that is the largest demonstrated value.
type SweepResult struct {
	Max      int32     `yaml:"max_successful"`
	Outcomes []Outcome `yaml:"outcomes"`
	Aborted  bool      `yaml:"aborted,omitempty"`
}

// classifyFailure maps a device error onto the failure taxonomy. Transfers
// in either direction count as upload failures; anything unrecognized is
// treated as an execution failure.
func classifyFailure(err error) FailureKind {
	var ae *accel.Error
	if !errors.As(err, &ae) {
		return FailureExecutionFailed
	}
	switch ae.Type {
	case accel.ErrTypeLaunchRejected:
		return FailureLaunchRejected
	case accel.ErrTypeHostAlloc:
		return FailureHostAllocFailed
	case accel.ErrTypeDeviceAlloc:
		return FailureDeviceAllocFailed
	case accel.ErrTypeTransfer:
		return FailureUploadFailed
	default:
		return FailureExecutionFailed
	}
}
