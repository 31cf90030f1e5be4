// Package accel defines the compute-accelerator abstraction used by the
// probe: device properties, memory buffers, kernel launch geometry, timing
// events, and a structured error taxonomy.
//
// A Device is an explicit handle rather than ambient runtime state, so the
// capability reader, the launch sweeps, and the limit calculator can all be
// driven against a software device in tests without hardware present.
//
// Example usage:
//
//	dev, err := cpu.Open(cpu.HostProfile())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	props := dev.Props()
//	buf, _ := dev.AllocDevice(1024 * 4)
//	defer buf.Free()
package accel

// Dim3 represents 3D dimensions for grid and block configurations.
// Components are int32 to match the launch-parameter width of native
// accelerator runtimes; a wrapped 32-bit value shows up as a negative
// component rather than silently truncating.
type Dim3 struct {
	X, Y, Z int32
}

// Size returns the total number of elements covered by the dimensions.
// The result is widened to int64: a full-size grid times a full-size
// block does not fit in 32 bits.
func (d Dim3) Size() int64 {
	return int64(d.X) * int64(d.Y) * int64(d.Z)
}

// DeviceProps is the immutable capability record reported by a device when
// it is opened. All fields are populated bit-for-bit as the underlying
// runtime reports them; there are no partial records.
type DeviceProps struct {
	Name                string
	ComputeMajor        int
	ComputeMinor        int
	TotalGlobalMem      uint64
	MaxThreadsPerBlock  int32
	MaxGridDim          [3]int32
	WarpSize            int32
	MultiprocessorCount int32
	MaxThreadsPerMP     int32
}

// Buffer is an allocation in device memory. It is opaque to the host; data
// moves in and out through Device.Upload and Device.Download.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() uint64
	// Free releases the allocation. Freeing twice is an error.
	Free() error
}

// HostBuffer is an allocation in host memory suitable for transfers to and
// from the device. Backends may pin it for faster DMA.
type HostBuffer interface {
	// Float32 returns a float32 view over the buffer contents.
	Float32() []float32
	// Size returns the allocation size in bytes.
	Size() uint64
	// Free releases the allocation. Freeing twice is an error.
	Free() error
}

// Event is a device-synchronized timestamp. Record enqueues the timestamp
// in device order; Synchronize blocks until the recorded point has been
// reached; Since reads the elapsed time to another completed event.
type Event interface {
	// Record enqueues the timestamp after all previously issued work.
	Record() error
	// Synchronize blocks until the recorded timestamp has completed.
	Synchronize() error
	// Since returns the elapsed time in milliseconds from start to this
	// event. Both events must have been recorded and completed.
	Since(start Event) (float64, error)
	// Close releases the event.
	Close() error
}

// Device is one compute accelerator. Implementations are safe for use from
// a single goroutine; the probe never overlaps two configurations' work.
//
// Launch semantics follow the native runtimes: Add validates the launch
// configuration synchronously (a rejection surfaces on the call itself)
// and executes asynchronously; failures during execution surface on the
// next Synchronize.
type Device interface {
	// Props returns the capability record populated at open time.
	Props() DeviceProps

	// AllocDevice allocates device memory.
	AllocDevice(bytes uint64) (Buffer, error)
	// AllocHost allocates host memory for transfers.
	AllocHost(bytes uint64) (HostBuffer, error)

	// Upload copies bytes from a host buffer to a device buffer. The call
	// returns after the copy has completed.
	Upload(dst Buffer, src HostBuffer, bytes uint64) error
	// Download copies bytes from a device buffer to a host buffer. The
	// call returns after the copy has completed.
	Download(dst HostBuffer, src Buffer, bytes uint64) error

	// Add launches the elementwise addition kernel out[i] = a[i] + b[i]
	// for i in [0, n) over the given grid and block geometry. Threads
	// whose global index falls outside [0, n) perform no write. The
	// launch is asynchronous on success.
	Add(a, b, out Buffer, n int32, grid, block Dim3) error

	// Synchronize blocks until all issued work has completed and reports
	// any execution failure detected since the previous Synchronize.
	Synchronize() error

	// NewEvent creates a timing event.
	NewEvent() (Event, error)

	// Close releases the device and all resources still held by it.
	Close() error
}
