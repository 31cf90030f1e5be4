// Package cpu implements a software compute device: an accelerator rendered
// on the host CPU. Blocks of a launch are sharded across worker goroutines,
// device and host memory come from capacity-limited pools, and all work
// flows through a single in-order stream. The device enforces the limits of
// a Profile, so launch rejection and allocation failure behave the way a
// native runtime's do.
package cpu

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/devicelab/gpuprobe/accel"
)

// Device is a software accelerator. It implements accel.Device.
type Device struct {
	profile Profile
	props   accel.DeviceProps
	devMem  *pool
	hostMem *pool
	stream  *stream
	workers int
	closed  atomic.Bool
}

var _ accel.Device = (*Device)(nil)

// Open creates a device that enforces the given profile. It fails when the
// profile does not describe a schedulable device.
func Open(p Profile) (*Device, error) {
	if err := p.Validate(); err != nil {
		return nil, accel.NewDeviceQueryError("Open", "invalid device profile", err)
	}
	hostLimit := p.HostMemLimit
	if hostLimit == 0 {
		hostLimit = systemMemory()
	}
	return &Device{
		profile: p,
		props:   p.Props(),
		devMem:  newPool(p.TotalGlobalMem),
		hostMem: newPool(hostLimit),
		stream:  newStream(),
		workers: runtime.NumCPU(),
	}, nil
}

// Props returns the capability record populated at open time.
func (d *Device) Props() accel.DeviceProps { return d.props }

func (d *Device) isClosed() bool { return d.closed.Load() }

// AllocDevice allocates device memory against the profile's global memory
// capacity.
func (d *Device) AllocDevice(bytes uint64) (accel.Buffer, error) {
	if d.isClosed() {
		return nil, accel.ErrClosed
	}
	alloc, err := d.devMem.allocate(bytes)
	if err != nil {
		return nil, accel.NewDeviceAllocError("AllocDevice",
			fmt.Sprintf("cannot allocate %d bytes of device memory", bytes), err)
	}
	return &buffer{pool: d.devMem, alloc: alloc, size: bytes}, nil
}

// AllocHost allocates host staging memory against the profile's host memory
// limit.
func (d *Device) AllocHost(bytes uint64) (accel.HostBuffer, error) {
	if d.isClosed() {
		return nil, accel.ErrClosed
	}
	alloc, err := d.hostMem.allocate(bytes)
	if err != nil {
		return nil, accel.NewHostAllocError("AllocHost",
			fmt.Sprintf("cannot allocate %d bytes of host memory", bytes), err)
	}
	return &hostBuffer{pool: d.hostMem, alloc: alloc, size: bytes}, nil
}

// Upload copies bytes from a host buffer to a device buffer in stream
// order, returning once the copy has completed.
func (d *Device) Upload(dst accel.Buffer, src accel.HostBuffer, bytes uint64) error {
	if d.isClosed() {
		return accel.ErrClosed
	}
	db, ok := dst.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Upload", "destination buffer belongs to a different backend")
	}
	hb, ok := src.(*hostBuffer)
	if !ok {
		return accel.NewInvalidArgError("Upload", "source buffer belongs to a different backend")
	}
	if err := checkCopy("Upload", bytes, hb.alloc, hb.size, db.alloc, db.size); err != nil {
		return err
	}
	d.run(func() { copy(db.alloc.data[:bytes], hb.alloc.data[:bytes]) })
	return nil
}

// Download copies bytes from a device buffer to a host buffer in stream
// order, returning once the copy has completed.
func (d *Device) Download(dst accel.HostBuffer, src accel.Buffer, bytes uint64) error {
	if d.isClosed() {
		return accel.ErrClosed
	}
	hb, ok := dst.(*hostBuffer)
	if !ok {
		return accel.NewInvalidArgError("Download", "destination buffer belongs to a different backend")
	}
	db, ok := src.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Download", "source buffer belongs to a different backend")
	}
	if err := checkCopy("Download", bytes, db.alloc, db.size, hb.alloc, hb.size); err != nil {
		return err
	}
	d.run(func() { copy(hb.alloc.data[:bytes], db.alloc.data[:bytes]) })
	return nil
}

// run submits a task to the stream and waits for it, keeping the call
// ordered with any asynchronous work issued earlier.
func (d *Device) run(task func()) {
	done := make(chan struct{})
	d.stream.submit(func() {
		task()
		close(done)
	})
	<-done
}

// checkCopy validates a transfer against the live state and sizes of both
// allocations.
func checkCopy(op string, bytes uint64, src *allocation, srcSize uint64, dst *allocation, dstSize uint64) error {
	if !src.used || !dst.used {
		return accel.NewTransferError(op, "buffer has been freed", nil)
	}
	if bytes > srcSize {
		return accel.NewTransferError(op,
			fmt.Sprintf("copy of %d bytes exceeds source buffer size %d", bytes, srcSize), nil)
	}
	if bytes > dstSize {
		return accel.NewTransferError(op,
			fmt.Sprintf("copy of %d bytes exceeds destination buffer size %d", bytes, dstSize), nil)
	}
	return nil
}

// Add launches the elementwise addition kernel out[i] = a[i] + b[i] for
// i in [0, n). Threads with no index in range perform no write; the launch
// grid may legitimately cover more logical slots than n.
func (d *Device) Add(a, b, out accel.Buffer, n int32, grid, block accel.Dim3) error {
	if d.isClosed() {
		return accel.ErrClosed
	}
	ab, ok := a.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "input buffer a belongs to a different backend")
	}
	bb, ok := b.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "input buffer b belongs to a different backend")
	}
	ob, ok := out.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "output buffer belongs to a different backend")
	}
	if n < 0 {
		return accel.NewInvalidArgError("Add", fmt.Sprintf("negative element count %d", n))
	}
	if need := uint64(n) * 4; need > ab.size || need > bb.size || need > ob.size {
		return accel.NewInvalidArgError("Add",
			fmt.Sprintf("element count %d exceeds a buffer's capacity", n))
	}

	av, bv, ov := ab.float32(), bb.float32(), ob.float32()
	count := int64(n)
	return d.Launch(func(tid ThreadID) {
		idx := tid.GlobalX()
		if idx < count {
			ov[idx] = av[idx] + bv[idx]
		}
	}, grid, block)
}

// Synchronize blocks until all issued work has completed and reports any
// execution failure detected since the previous Synchronize.
func (d *Device) Synchronize() error {
	if d.isClosed() {
		return accel.ErrClosed
	}
	d.stream.wait()
	return d.stream.takeExecErr()
}

// NewEvent creates a timing event recorded on the device stream.
func (d *Device) NewEvent() (accel.Event, error) {
	if d.isClosed() {
		return nil, accel.ErrClosed
	}
	return &event{dev: d}, nil
}

// MemStats returns current and peak device memory held by live allocations.
func (d *Device) MemStats() (allocated, peak uint64) {
	return d.devMem.stats()
}

// HostMemStats returns current and peak host staging memory held by live
// allocations.
func (d *Device) HostMemStats() (allocated, peak uint64) {
	return d.hostMem.stats()
}

// Close drains the stream and releases the device. Buffers still live
// become unusable.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return accel.ErrClosed
	}
	d.stream.close()
	return nil
}
