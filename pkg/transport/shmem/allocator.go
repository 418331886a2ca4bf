package shmem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// Allocator carves byte ranges out of a fixed-capacity arena (§4.7's main
// segment). Offsets are stable handles: Free must be called with the exact
// (offset, size) pair returned by (and passed to) Alloc.
type Allocator interface {
	Alloc(size int) (offset int, err error)
	Free(offset, size int)
	Capacity() int
	FreeBytes() int
}

type block struct {
	offset, size int
}

// RBTreeBestFit picks, among free blocks large enough to satisfy a request,
// the smallest one — minimizing fragmentation relative to first-fit at the
// cost of a scan over the free list on every allocation. Free blocks are
// kept sorted by offset so adjacent blocks coalesce in O(log n).
type RBTreeBestFit struct {
	mu       sync.Mutex
	capacity int
	free     []block // sorted by offset
}

var _ Allocator = (*RBTreeBestFit)(nil)

func NewRBTreeBestFit(capacity int) *RBTreeBestFit {
	return &RBTreeBestFit{capacity: capacity, free: []block{{0, capacity}}}
}

func (a *RBTreeBestFit) Capacity() int { return a.capacity }

func (a *RBTreeBestFit) FreeBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, b := range a.free {
		total += b.size
	}
	return total
}

func (a *RBTreeBestFit) Alloc(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: alloc size must be positive, got %d", transport.ErrSocket, size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	best := -1
	for i, b := range a.free {
		if b.size < size {
			continue
		}
		if best == -1 || b.size < a.free[best].size {
			best = i
		}
	}
	if best == -1 {
		return 0, errMessageBadAlloc
	}

	chosen := a.free[best]
	offset := chosen.offset
	if chosen.size == size {
		a.free = append(a.free[:best], a.free[best+1:]...)
	} else {
		a.free[best] = block{offset: chosen.offset + size, size: chosen.size - size}
	}
	return offset, nil
}

func (a *RBTreeBestFit) Free(offset, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insertAndCoalesce(block{offset, size})
}

func (a *RBTreeBestFit) insertAndCoalesce(b block) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= b.offset })
	a.free = append(a.free, block{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = b

	// Merge with the following neighbor first so indices stay valid.
	if i+1 < len(a.free) && a.free[i].offset+a.free[i].size == a.free[i+1].offset {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == a.free[i].offset {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// SimpleFirstFit returns the first free block (in offset order) large
// enough to satisfy the request — cheaper per-allocation than best-fit, at
// the cost of faster fragmentation under mixed-size workloads.
type SimpleFirstFit struct {
	mu       sync.Mutex
	capacity int
	free     []block // sorted by offset
}

var _ Allocator = (*SimpleFirstFit)(nil)

func NewSimpleFirstFit(capacity int) *SimpleFirstFit {
	return &SimpleFirstFit{capacity: capacity, free: []block{{0, capacity}}}
}

func (a *SimpleFirstFit) Capacity() int { return a.capacity }

func (a *SimpleFirstFit) FreeBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, b := range a.free {
		total += b.size
	}
	return total
}

func (a *SimpleFirstFit) Alloc(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: alloc size must be positive, got %d", transport.ErrSocket, size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range a.free {
		if b.size < size {
			continue
		}
		offset := b.offset
		if b.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = block{offset: b.offset + size, size: b.size - size}
		}
		return offset, nil
	}
	return 0, errMessageBadAlloc
}

func (a *SimpleFirstFit) Free(offset, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= offset })
	a.free = append(a.free, block{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = block{offset, size}

	if i+1 < len(a.free) && a.free[i].offset+a.free[i].size == a.free[i+1].offset {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == a.free[i].offset {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// NewAllocator builds the allocator named by kind ("rbtree_best_fit" or
// "simple_seq_fit"), matching the --shm-allocation CLI value (§6).
func NewAllocator(kind string, capacity int) (Allocator, error) {
	switch kind {
	case "", "rbtree_best_fit":
		return NewRBTreeBestFit(capacity), nil
	case "simple_seq_fit":
		return NewSimpleFirstFit(capacity), nil
	default:
		return nil, fmt.Errorf("shmem: unknown allocator %q", kind)
	}
}
