package gpuprobe

import (
	"fmt"

	"github.com/devicelab/gpuprobe/accel"
)

// fakeDevice is a scripted accel.Device for sweep tests. Limits are plain
// fields, failures are injected per operation, and every allocation and
// launch is counted so tests can assert cleanup and geometry without real
// memory behind the buffers.
type fakeDevice struct {
	props accel.DeviceProps

	maxBlockThreads int32 // block sizes above this are rejected
	maxGridX        int32 // grid X extents above this are rejected

	hostAllocErr   error
	deviceAllocErr error
	uploadErr      error
	downloadErr    error
	launchErr      error // non-rejection failure from the launch call
	syncErr        error // consumed by the next Synchronize

	hostAllocs   int
	hostFrees    int
	deviceAllocs int
	deviceFrees  int
	eventOpens   int
	eventCloses  int
	syncs        int
	launches     []fakeLaunch
}

type fakeLaunch struct {
	n     int32
	grid  accel.Dim3
	block accel.Dim3
}

var _ accel.Device = (*fakeDevice)(nil)

func newFakeDevice(maxBlockThreads, maxGridX int32) *fakeDevice {
	return &fakeDevice{
		props: accel.DeviceProps{
			Name:                "Scripted Device",
			ComputeMajor:        9,
			ComputeMinor:        9,
			TotalGlobalMem:      16 << 30,
			MaxThreadsPerBlock:  maxBlockThreads,
			MaxGridDim:          [3]int32{maxGridX, 65535, 65535},
			WarpSize:            32,
			MultiprocessorCount: 4,
			MaxThreadsPerMP:     1024,
		},
		maxBlockThreads: maxBlockThreads,
		maxGridX:        maxGridX,
	}
}

func (f *fakeDevice) Props() accel.DeviceProps { return f.props }

func (f *fakeDevice) AllocDevice(bytes uint64) (accel.Buffer, error) {
	if f.deviceAllocErr != nil {
		return nil, f.deviceAllocErr
	}
	f.deviceAllocs++
	return &fakeBuffer{dev: f, size: bytes}, nil
}

func (f *fakeDevice) AllocHost(bytes uint64) (accel.HostBuffer, error) {
	if f.hostAllocErr != nil {
		return nil, f.hostAllocErr
	}
	f.hostAllocs++
	// Back only what the sweeps initialize. They touch at most the
	// bounded prefix, so huge candidates stay cheap to fake.
	elems := bytes / 4
	if elems > hostInitPrefix {
		elems = hostInitPrefix
	}
	return &fakeHostBuffer{dev: f, size: bytes, data: make([]float32, elems)}, nil
}

func (f *fakeDevice) Upload(dst accel.Buffer, src accel.HostBuffer, bytes uint64) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	return nil
}

func (f *fakeDevice) Download(dst accel.HostBuffer, src accel.Buffer, bytes uint64) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return nil
}

func (f *fakeDevice) Add(a, b, out accel.Buffer, n int32, grid, block accel.Dim3) error {
	if threads := block.Size(); threads > int64(f.maxBlockThreads) {
		return accel.NewLaunchRejectedError("Add",
			fmt.Sprintf("block size %d exceeds limit %d", threads, f.maxBlockThreads), nil)
	}
	if grid.X > f.maxGridX {
		return accel.NewLaunchRejectedError("Add",
			fmt.Sprintf("grid X %d exceeds limit %d", grid.X, f.maxGridX), nil)
	}
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launches = append(f.launches, fakeLaunch{n: n, grid: grid, block: block})
	return nil
}

func (f *fakeDevice) Synchronize() error {
	f.syncs++
	if err := f.syncErr; err != nil {
		f.syncErr = nil
		return err
	}
	return nil
}

func (f *fakeDevice) NewEvent() (accel.Event, error) {
	f.eventOpens++
	return &fakeEvent{dev: f}, nil
}

func (f *fakeDevice) Close() error { return nil }

// leaks reports any resource whose alloc and free counts disagree.
func (f *fakeDevice) leaks() error {
	if f.hostAllocs != f.hostFrees {
		return fmt.Errorf("host buffers: %d allocated, %d freed", f.hostAllocs, f.hostFrees)
	}
	if f.deviceAllocs != f.deviceFrees {
		return fmt.Errorf("device buffers: %d allocated, %d freed", f.deviceAllocs, f.deviceFrees)
	}
	if f.eventOpens != f.eventCloses {
		return fmt.Errorf("events: %d opened, %d closed", f.eventOpens, f.eventCloses)
	}
	return nil
}

type fakeBuffer struct {
	dev   *fakeDevice
	size  uint64
	freed bool
}

func (b *fakeBuffer) Size() uint64 { return b.size }

func (b *fakeBuffer) Free() error {
	if b.freed {
		return accel.ErrDoubleFree
	}
	b.freed = true
	b.dev.deviceFrees++
	return nil
}

type fakeHostBuffer struct {
	dev   *fakeDevice
	size  uint64
	data  []float32
	freed bool
}

func (b *fakeHostBuffer) Float32() []float32 { return b.data }
func (b *fakeHostBuffer) Size() uint64       { return b.size }

func (b *fakeHostBuffer) Free() error {
	if b.freed {
		return accel.ErrDoubleFree
	}
	b.freed = true
	b.dev.hostFrees++
	return nil
}

type fakeEvent struct {
	dev      *fakeDevice
	recorded bool
	closed   bool
}

func (e *fakeEvent) Record() error {
	e.recorded = true
	return nil
}

func (e *fakeEvent) Synchronize() error {
	if !e.recorded {
		return accel.ErrEventNotRecorded
	}
	return nil
}

func (e *fakeEvent) Since(start accel.Event) (float64, error) {
	s, ok := start.(*fakeEvent)
	if !ok {
		return 0, accel.NewInvalidArgError("Event.Since", "start event belongs to a different backend")
	}
	if !s.recorded || !e.recorded {
		return 0, accel.ErrEventNotRecorded
	}
	return 1.5, nil
}

func (e *fakeEvent) Close() error {
	if e.closed {
		return accel.ErrDoubleFree
	}
	e.closed = true
	e.dev.eventCloses++
	return nil
}
