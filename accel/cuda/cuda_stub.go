//go:build !linux

package cuda

import (
	"github.com/devicelab/gpuprobe/accel"
)

// Open always fails on platforms without CUDA driver bindings. Callers fall
// back to the software backend.
func Open(index int) (*Device, error) {
	return nil, accel.NewDeviceQueryError("Open", "CUDA backend is only available on linux", nil)
}

// Device is a placeholder so the package API type-checks on every platform.
// Open never returns one here.
type Device struct{}

func (d *Device) Props() accel.DeviceProps { return accel.DeviceProps{} }

func (d *Device) AllocDevice(bytes uint64) (accel.Buffer, error) {
	return nil, accel.NewDeviceAllocError("AllocDevice", "CUDA backend unavailable", nil)
}

func (d *Device) AllocHost(bytes uint64) (accel.HostBuffer, error) {
	return nil, accel.NewHostAllocError("AllocHost", "CUDA backend unavailable", nil)
}

func (d *Device) Upload(dst accel.Buffer, src accel.HostBuffer, bytes uint64) error {
	return accel.NewTransferError("Upload", "CUDA backend unavailable", nil)
}

func (d *Device) Download(dst accel.HostBuffer, src accel.Buffer, bytes uint64) error {
	return accel.NewTransferError("Download", "CUDA backend unavailable", nil)
}

func (d *Device) Add(a, b, out accel.Buffer, n int32, grid, block accel.Dim3) error {
	return accel.NewExecutionError("Add", "CUDA backend unavailable", nil)
}

func (d *Device) Synchronize() error {
	return accel.NewExecutionError("Synchronize", "CUDA backend unavailable", nil)
}

func (d *Device) NewEvent() (accel.Event, error) {
	return nil, accel.NewDeviceAllocError("NewEvent", "CUDA backend unavailable", nil)
}

func (d *Device) Close() error { return nil }
