//go:build linux && cgo

package detect

import (
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/multierr"
)

func wrapNvmlError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return errors.New(nvml.ErrorString(ret))
}

// Probe lists the NVIDIA GPUs NVML can see. Handle lookup failures abort the
// scan; per-device detail queries are best-effort and leave zero values.
func Probe() (gpus []GPU, err error) {
	if ierr := wrapNvmlError(nvml.Init()); ierr != nil {
		return nil, fmt.Errorf("initializing NVML: %w", ierr)
	}
	defer func() {
		err = multierr.Append(err, wrapNvmlError(nvml.Shutdown()))
	}()

	count, ret := nvml.DeviceGetCount()
	if cerr := wrapNvmlError(ret); cerr != nil {
		return nil, fmt.Errorf("counting GPU devices: %w", cerr)
	}

	driver, ret := nvml.SystemGetDriverVersion()
	if wrapNvmlError(ret) != nil {
		driver = ""
	}

	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if herr := wrapNvmlError(ret); herr != nil {
			return nil, fmt.Errorf("getting handle for GPU %d: %w", i, herr)
		}
		g := GPU{Index: i, DriverVersion: driver}
		if name, ret := dev.GetName(); wrapNvmlError(ret) == nil {
			g.Name = name
		}
		if uuid, ret := dev.GetUUID(); wrapNvmlError(ret) == nil {
			g.UUID = uuid
		}
		if mem, ret := dev.GetMemoryInfo(); wrapNvmlError(ret) == nil {
			g.MemoryBytes = mem.Total
		}
		if major, minor, ret := dev.GetCudaComputeCapability(); wrapNvmlError(ret) == nil {
			g.ComputeMajor = major
			g.ComputeMinor = minor
		}
		gpus = append(gpus, g)
	}
	return gpus, nil
}

// Available reports whether at least one GPU responded to discovery.
func Available() bool {
	gpus, err := Probe()
	return err == nil && len(gpus) > 0
}
