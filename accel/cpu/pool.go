package cpu

import (
	"fmt"
	"sync"
)

// pool manages byte-slice-backed allocations with efficient reuse. It
// maintains a free list of previously allocated blocks to reduce allocation
// overhead, and enforces a fixed capacity so a device hands out no more
// memory than its profile grants.
type pool struct {
	mu         sync.Mutex
	capacity   uint64
	freeList   []*allocation
	totalAlloc uint64
	peakAlloc  uint64
}

type allocation struct {
	data []byte
	size uint64 // aligned size, what counts against capacity
	used bool
}

// allocAlignment keeps blocks cache-line aligned, matching what device
// runtimes guarantee for linear allocations.
const allocAlignment = 64

func newPool(capacity uint64) *pool {
	return &pool{capacity: capacity}
}

// allocate hands out a block of at least size bytes, reusing a free-listed
// block when one is large enough.
func (p *pool) allocate(size uint64) (*allocation, error) {
	if size == 0 {
		return nil, fmt.Errorf("allocation size must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	alignedSize := (size + allocAlignment - 1) &^ (allocAlignment - 1)

	// Try to reuse from free list. Reused blocks count against capacity
	// the same as fresh ones.
	for i, alloc := range p.freeList {
		if alloc.size < alignedSize || p.totalAlloc+alloc.size > p.capacity {
			continue
		}
		p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
		alloc.used = true

		p.totalAlloc += alloc.size
		if p.totalAlloc > p.peakAlloc {
			p.peakAlloc = p.totalAlloc
		}
		return alloc, nil
	}

	if p.totalAlloc+alignedSize > p.capacity {
		return nil, fmt.Errorf("out of memory: %d bytes requested, %d of %d in use",
			alignedSize, p.totalAlloc, p.capacity)
	}

	alloc := &allocation{
		data: make([]byte, alignedSize),
		size: alignedSize,
		used: true,
	}

	p.totalAlloc += alignedSize
	if p.totalAlloc > p.peakAlloc {
		p.peakAlloc = p.totalAlloc
	}
	return alloc, nil
}

// free returns a block to the pool for reuse.
func (p *pool) free(alloc *allocation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !alloc.used {
		return fmt.Errorf("double free detected")
	}

	alloc.used = false
	p.freeList = append(p.freeList, alloc)
	p.totalAlloc -= alloc.size
	return nil
}

// stats returns current and peak bytes held by live allocations.
func (p *pool) stats() (allocated, peak uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalAlloc, p.peakAlloc
}
