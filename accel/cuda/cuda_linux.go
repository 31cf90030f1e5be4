//go:build linux

package cuda

import (
	"fmt"
	"unsafe"

	"github.com/devicelab/gpuprobe/accel"
)

// Device drives a physical NVIDIA GPU through the CUDA driver API. All
// operations run on the default stream of a context owned by the device,
// so launches and copies are implicitly ordered the same way the software
// backend orders its task queue.
type Device struct {
	index  int
	handle int32
	ctx    uintptr
	module uintptr
	addFn  uintptr
	props  accel.DeviceProps
	closed bool
}

var _ accel.Device = (*Device)(nil)

// Open initializes the driver, binds device index, creates a context and
// JIT-loads the addition kernel. Any failure along the way, including the
// driver library being absent, surfaces as a device-query error.
func Open(index int) (*Device, error) {
	if err := initDriver(); err != nil {
		return nil, accel.NewDeviceQueryError("Open", "CUDA driver unavailable", err)
	}
	if r := cuInit(0); r != cudaSuccess {
		return nil, accel.NewDeviceQueryError("Open", "cuInit failed", r)
	}
	var count int32
	if r := cuDeviceGetCount(&count); r != cudaSuccess {
		return nil, accel.NewDeviceQueryError("Open", "cuDeviceGetCount failed", r)
	}
	if index < 0 || index >= int(count) {
		return nil, accel.NewDeviceQueryError("Open",
			fmt.Sprintf("device index %d out of range, %d device(s) present", index, count), nil)
	}
	var handle int32
	if r := cuDeviceGet(&handle, int32(index)); r != cudaSuccess {
		return nil, accel.NewDeviceQueryError("Open", "cuDeviceGet failed", r)
	}
	props, err := queryProps(handle)
	if err != nil {
		return nil, err
	}

	var ctx uintptr
	if r := cuCtxCreate(&ctx, 0, handle); r != cudaSuccess {
		return nil, accel.NewDeviceQueryError("Open", "cuCtxCreate failed", r)
	}

	src := append([]byte(addPTX), 0)
	var module uintptr
	if r := cuModuleLoadData(&module, unsafe.Pointer(&src[0])); r != cudaSuccess {
		cuCtxDestroy(ctx)
		return nil, accel.NewDeviceQueryError("Open", "loading kernel module failed", r)
	}
	name := append([]byte("add_f32"), 0)
	var fn uintptr
	if r := cuModuleGetFunction(&fn, module, &name[0]); r != cudaSuccess {
		cuModuleUnload(module)
		cuCtxDestroy(ctx)
		return nil, accel.NewDeviceQueryError("Open", "kernel add_f32 not found in module", r)
	}

	return &Device{
		index:  index,
		handle: handle,
		ctx:    ctx,
		module: module,
		addFn:  fn,
		props:  props,
	}, nil
}

func queryProps(handle int32) (accel.DeviceProps, error) {
	var props accel.DeviceProps

	nameBuf := make([]byte, 256)
	if r := cuDeviceGetName(&nameBuf[0], int32(len(nameBuf)), handle); r != cudaSuccess {
		return props, accel.NewDeviceQueryError("Open", "cuDeviceGetName failed", r)
	}
	for i, c := range nameBuf {
		if c == 0 {
			props.Name = string(nameBuf[:i])
			break
		}
	}

	var total uint64
	if r := cuDeviceTotalMem(&total, handle); r != cudaSuccess {
		return props, accel.NewDeviceQueryError("Open", "cuDeviceTotalMem failed", r)
	}
	props.TotalGlobalMem = total

	var qerr error
	attr := func(code int32) int32 {
		var v int32
		if r := cuDeviceGetAttribute(&v, code, handle); r != cudaSuccess && qerr == nil {
			qerr = accel.NewDeviceQueryError("Open",
				fmt.Sprintf("cuDeviceGetAttribute(%d) failed", code), r)
		}
		return v
	}
	props.MaxThreadsPerBlock = attr(attrMaxThreadsPerBlock)
	props.MaxGridDim = [3]int32{attr(attrMaxGridDimX), attr(attrMaxGridDimY), attr(attrMaxGridDimZ)}
	props.WarpSize = attr(attrWarpSize)
	props.MultiprocessorCount = attr(attrMultiprocessors)
	props.MaxThreadsPerMP = attr(attrMaxThreadsPerMP)
	props.ComputeMajor = int(attr(attrComputeMajor))
	props.ComputeMinor = int(attr(attrComputeMinor))
	if qerr != nil {
		return accel.DeviceProps{}, qerr
	}
	return props, nil
}

func (d *Device) Props() accel.DeviceProps { return d.props }

// buffer is a device allocation identified by its CUdeviceptr.
type buffer struct {
	dptr  uintptr
	size  uint64
	freed bool
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) Free() error {
	if b.freed {
		return accel.ErrDoubleFree
	}
	b.freed = true
	if r := cuMemFree(b.dptr); r != cudaSuccess {
		return accel.NewDeviceAllocError("Free", "cuMemFree failed", r)
	}
	return nil
}

// hostBuffer is page-locked host memory, so H2D/D2H copies run at full
// bus speed and the float32 view stays valid for the kernel's lifetime.
type hostBuffer struct {
	ptr   unsafe.Pointer
	size  uint64
	freed bool
}

func (b *hostBuffer) Size() uint64 { return b.size }

func (b *hostBuffer) Float32() []float32 {
	if b.freed || b.size < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(b.ptr), b.size/4)
}

func (b *hostBuffer) Free() error {
	if b.freed {
		return accel.ErrDoubleFree
	}
	b.freed = true
	if r := cuMemFreeHost(b.ptr); r != cudaSuccess {
		return accel.NewHostAllocError("Free", "cuMemFreeHost failed", r)
	}
	return nil
}

func (d *Device) AllocDevice(bytes uint64) (accel.Buffer, error) {
	if d.closed {
		return nil, accel.NewDeviceAllocError("AllocDevice", "device is closed", accel.ErrClosed)
	}
	if bytes == 0 {
		return nil, accel.NewInvalidArgError("AllocDevice", "zero-byte allocation")
	}
	var dptr uintptr
	if r := cuMemAlloc(&dptr, bytes); r != cudaSuccess {
		return nil, accel.NewDeviceAllocError("AllocDevice",
			fmt.Sprintf("cuMemAlloc of %d bytes failed", bytes), r)
	}
	return &buffer{dptr: dptr, size: bytes}, nil
}

func (d *Device) AllocHost(bytes uint64) (accel.HostBuffer, error) {
	if d.closed {
		return nil, accel.NewHostAllocError("AllocHost", "device is closed", accel.ErrClosed)
	}
	if bytes == 0 {
		return nil, accel.NewInvalidArgError("AllocHost", "zero-byte allocation")
	}
	var ptr unsafe.Pointer
	if r := cuMemAllocHost(&ptr, bytes); r != cudaSuccess {
		return nil, accel.NewHostAllocError("AllocHost",
			fmt.Sprintf("cuMemAllocHost of %d bytes failed", bytes), r)
	}
	return &hostBuffer{ptr: ptr, size: bytes}, nil
}

func (d *Device) Upload(dst accel.Buffer, src accel.HostBuffer, bytes uint64) error {
	db, ok := dst.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Upload", "destination belongs to a different backend")
	}
	sb, ok := src.(*hostBuffer)
	if !ok {
		return accel.NewInvalidArgError("Upload", "source belongs to a different backend")
	}
	if err := checkCopy("Upload", db, sb, bytes); err != nil {
		return err
	}
	if r := cuMemcpyHtoD(db.dptr, sb.ptr, bytes); r != cudaSuccess {
		return accel.NewTransferError("Upload",
			fmt.Sprintf("cuMemcpyHtoD of %d bytes failed", bytes), r)
	}
	return nil
}

func (d *Device) Download(dst accel.HostBuffer, src accel.Buffer, bytes uint64) error {
	db, ok := dst.(*hostBuffer)
	if !ok {
		return accel.NewInvalidArgError("Download", "destination belongs to a different backend")
	}
	sb, ok := src.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Download", "source belongs to a different backend")
	}
	if err := checkCopy("Download", sb, db, bytes); err != nil {
		return err
	}
	if r := cuMemcpyDtoH(db.ptr, sb.dptr, bytes); r != cudaSuccess {
		return accel.NewTransferError("Download",
			fmt.Sprintf("cuMemcpyDtoH of %d bytes failed", bytes), r)
	}
	return nil
}

func checkCopy(op string, dev *buffer, host *hostBuffer, bytes uint64) error {
	if dev.freed || host.freed {
		return accel.NewTransferError(op, "buffer already freed", nil)
	}
	if bytes > dev.size || bytes > host.size {
		return accel.NewTransferError(op,
			fmt.Sprintf("copy of %d bytes exceeds buffer size", bytes), nil)
	}
	return nil
}

// Add launches add_f32 with the caller's exact grid and block geometry. The
// driver is the arbiter of what fits: dimensions are forwarded untouched and
// its verdict is mapped onto the error taxonomy, with the launch-rejection
// codes kept distinct from genuine execution faults.
func (d *Device) Add(a, b, out accel.Buffer, n int32, grid, block accel.Dim3) error {
	if d.closed {
		return accel.NewExecutionError("Add", "device is closed", accel.ErrClosed)
	}
	ab, ok := a.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "operand a belongs to a different backend")
	}
	bb, ok := b.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "operand b belongs to a different backend")
	}
	ob, ok := out.(*buffer)
	if !ok {
		return accel.NewInvalidArgError("Add", "operand out belongs to a different backend")
	}
	if ab.freed || bb.freed || ob.freed {
		return accel.NewInvalidArgError("Add", "operand already freed")
	}
	if n < 0 {
		return accel.NewInvalidArgError("Add", fmt.Sprintf("negative element count %d", n))
	}

	nv := uint32(n)
	params := []unsafe.Pointer{
		unsafe.Pointer(&ob.dptr),
		unsafe.Pointer(&ab.dptr),
		unsafe.Pointer(&bb.dptr),
		unsafe.Pointer(&nv),
	}
	r := cuLaunchKernel(d.addFn,
		uint32(grid.X), uint32(grid.Y), uint32(grid.Z),
		uint32(block.X), uint32(block.Y), uint32(block.Z),
		0, 0, unsafe.Pointer(&params[0]), nil)
	if r != cudaSuccess {
		msg := fmt.Sprintf("launch with grid (%d,%d,%d) block (%d,%d,%d) failed",
			grid.X, grid.Y, grid.Z, block.X, block.Y, block.Z)
		if r.launchRejected() {
			return accel.NewLaunchRejectedError("Add", msg, r)
		}
		return accel.NewExecutionError("Add", msg, r)
	}
	return nil
}

func (d *Device) Synchronize() error {
	if d.closed {
		return accel.NewExecutionError("Synchronize", "device is closed", accel.ErrClosed)
	}
	if r := cuCtxSynchronize(); r != cudaSuccess {
		return accel.NewExecutionError("Synchronize", "cuCtxSynchronize failed", r)
	}
	return nil
}

// event wraps a CUevent recorded on the default stream.
type event struct {
	handle   uintptr
	recorded bool
	closed   bool
}

func (d *Device) NewEvent() (accel.Event, error) {
	if d.closed {
		return nil, accel.NewDeviceAllocError("NewEvent", "device is closed", accel.ErrClosed)
	}
	var h uintptr
	if r := cuEventCreate(&h, 0); r != cudaSuccess {
		return nil, accel.NewDeviceAllocError("NewEvent", "cuEventCreate failed", r)
	}
	return &event{handle: h}, nil
}

func (e *event) Record() error {
	if e.closed {
		return accel.NewExecutionError("Record", "event is closed", accel.ErrClosed)
	}
	if r := cuEventRecord(e.handle, 0); r != cudaSuccess {
		return accel.NewExecutionError("Record", "cuEventRecord failed", r)
	}
	e.recorded = true
	return nil
}

func (e *event) Synchronize() error {
	if !e.recorded {
		return accel.NewExecutionError("Synchronize", "event was never recorded", accel.ErrEventNotRecorded)
	}
	if r := cuEventSynchronize(e.handle); r != cudaSuccess {
		return accel.NewExecutionError("Synchronize", "cuEventSynchronize failed", r)
	}
	return nil
}

func (e *event) Since(start accel.Event) (float64, error) {
	se, ok := start.(*event)
	if !ok {
		return 0, accel.NewInvalidArgError("Since", "event belongs to a different backend")
	}
	if !e.recorded || !se.recorded {
		return 0, accel.NewExecutionError("Since", "event was never recorded", accel.ErrEventNotRecorded)
	}
	var ms float32
	if r := cuEventElapsedTime(&ms, se.handle, e.handle); r != cudaSuccess {
		return 0, accel.NewExecutionError("Since", "cuEventElapsedTime failed", r)
	}
	return float64(ms), nil
}

func (e *event) Close() error {
	if e.closed {
		return accel.ErrDoubleFree
	}
	e.closed = true
	if r := cuEventDestroy(e.handle); r != cudaSuccess {
		return accel.NewExecutionError("Close", "cuEventDestroy failed", r)
	}
	return nil
}

func (d *Device) Close() error {
	if d.closed {
		return accel.ErrDoubleFree
	}
	d.closed = true
	if d.module != 0 {
		cuModuleUnload(d.module)
	}
	if d.ctx != 0 {
		if r := cuCtxDestroy(d.ctx); r != cudaSuccess {
			return accel.NewDeviceQueryError("Close", "cuCtxDestroy failed", r)
		}
	}
	return nil
}
