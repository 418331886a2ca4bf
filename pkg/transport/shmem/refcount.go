package shmem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

const refcountSlotSize = 4 // one uint32 counter per slot

// refKey identifies a handle within the segment that allocated it. A single
// RefcountTable can back more than one allocator (the main and alternate
// segments share one, §4.7's "segment id"), and each allocator hands out
// offsets starting from zero, so the segment id has to be part of the key or
// two unrelated allocations could collide on the same handle.
type refKey struct {
	segment uint16
	handle  int
}

// RefcountTable is the dedicated region described in §4.7: a fixed-size
// segment of 32-bit counters, one per live message handle. The counter
// itself is an *atomic.Uint32 aliased directly onto the segment's backing
// array, so a peer process attaching the same segment id increments and
// reads the same memory word; slot assignment (which handle maps to which
// offset) is the one piece of bookkeeping that stays local to the
// allocating process, since a handle is only ever freed by whichever side
// observes its count reach zero.
type RefcountTable struct {
	seg   *Segment
	slots Allocator

	mu       sync.Mutex
	byHandle map[refKey]int // (segment, handle) -> slot offset
}

func NewRefcountTable(seg *Segment, maxSlots int) *RefcountTable {
	return &RefcountTable{
		seg:      seg,
		slots:    NewSimpleFirstFit(maxSlots * refcountSlotSize),
		byHandle: make(map[refKey]int),
	}
}

// Register assigns handle a fresh counter initialized to 1 (the reference
// the allocating message itself holds).
func (t *RefcountTable) Register(segment uint16, handle int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := refKey{segment, handle}
	if _, exists := t.byHandle[key]; exists {
		return fmt.Errorf("shmem: handle %d (segment %d) already registered", handle, segment)
	}
	slot, err := t.slots.Alloc(refcountSlotSize)
	if err != nil {
		return fmt.Errorf("shmem: refcount table exhausted: %w", err)
	}
	t.counterAt(slot).Store(1)
	t.byHandle[key] = slot
	return nil
}

// Ref increments handle's counter (a Copy of a message sharing the same
// payload) and returns the new value.
func (t *RefcountTable) Ref(segment uint16, handle int) uint32 {
	slot := t.slotFor(segment, handle)
	return t.counterAt(slot).Add(1)
}

// Unref decrements handle's counter and returns the new value; the caller
// must deallocate the payload and Forget the handle when this reaches 0.
func (t *RefcountTable) Unref(segment uint16, handle int) uint32 {
	slot := t.slotFor(segment, handle)
	return t.counterAt(slot).Add(^uint32(0)) // atomic decrement
}

// Forget releases handle's slot once its counter has reached 0.
func (t *RefcountTable) Forget(segment uint16, handle int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := refKey{segment, handle}
	slot, ok := t.byHandle[key]
	if !ok {
		return
	}
	delete(t.byHandle, key)
	t.slots.Free(slot, refcountSlotSize)
}

func (t *RefcountTable) slotFor(segment uint16, handle int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byHandle[refKey{segment, handle}]
}

func (t *RefcountTable) counterAt(slot int) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&t.seg.Bytes()[slot]))
}
