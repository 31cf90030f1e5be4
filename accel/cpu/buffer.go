package cpu

import (
	"unsafe"

	"github.com/devicelab/gpuprobe/accel"
)

// buffer is device memory backed by pool storage.
type buffer struct {
	pool  *pool
	alloc *allocation
	size  uint64 // requested size, what Size reports
}

// Size returns the size in bytes of the memory region
func (b *buffer) Size() uint64 { return b.size }

// Free returns the memory to the device pool.
func (b *buffer) Free() error {
	if err := b.pool.free(b.alloc); err != nil {
		return accel.ErrDoubleFree
	}
	return nil
}

func (b *buffer) float32() []float32 {
	return float32View(b.alloc.data, b.size)
}

// hostBuffer is host staging memory backed by pool storage.
type hostBuffer struct {
	pool  *pool
	alloc *allocation
	size  uint64
}

// Float32 returns a float32 slice view of the buffer. The slice can be used
// directly for reading and writing data.
func (b *hostBuffer) Float32() []float32 {
	return float32View(b.alloc.data, b.size)
}

// Size returns the size in bytes of the memory region
func (b *hostBuffer) Size() uint64 { return b.size }

// Free returns the memory to the host pool.
func (b *hostBuffer) Free() error {
	if err := b.pool.free(b.alloc); err != nil {
		return accel.ErrDoubleFree
	}
	return nil
}

// float32View reinterprets the first size bytes of data as float32s.
func float32View(data []byte, size uint64) []float32 {
	n := size / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
}
