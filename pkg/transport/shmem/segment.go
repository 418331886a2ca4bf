package shmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Segment wraps one SysV shared-memory segment: the main payload segment
// or an unmanaged region's own backing segment (§4.7). It is the one
// genuinely shared resource in the transport — every other named object
// (management segment, control queue) is process-local bookkeeping that
// merely references segments by name.
type Segment struct {
	id   int
	key  uint32
	size int
	data []byte
}

// AttachOrCreateSegment opens the segment named by key, creating it at
// size if it does not already exist. The returned bool reports whether this
// call created the segment ("first process in the session", which zeros/locks
// per the creation flags) rather than attaching, as a later attacher does,
// to the existing segment.
func AttachOrCreateSegment(key uint32, size int, zeroOnCreation, lockOnCreation bool) (*Segment, bool, error) {
	id, err := unix.SysvShmGet(int(key), size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	created := err == nil
	if err != nil {
		id, err = unix.SysvShmGet(int(key), size, 0600)
		if err != nil {
			return nil, false, fmt.Errorf("shmem: shmget key=%d size=%d: %w", key, size, err)
		}
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, false, fmt.Errorf("shmem: shmat id=%d: %w", id, err)
	}

	if created {
		if zeroOnCreation {
			for i := range data {
				data[i] = 0
			}
		}
		if lockOnCreation {
			_ = unix.Mlock(data)
		}
	}

	return &Segment{id: id, key: key, size: size, data: data}, created, nil
}

// OpenSegment attaches an existing segment without attempting to create
// one (used by the monitor, which only ever observes).
func OpenSegment(key uint32) (*Segment, error) {
	id, err := unix.SysvShmGet(int(key), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmem: shmget key=%d (open): %w", key, err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmem: shmat id=%d: %w", id, err)
	}
	stat, err := segmentSize(id)
	if err != nil {
		stat = len(data)
	}
	return &Segment{id: id, key: key, size: stat, data: data}, nil
}

func segmentSize(id int) (int, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return 0, err
	}
	return int(desc.Segsz), nil
}

// Bytes exposes the segment's mapped memory.
func (s *Segment) Bytes() []byte { return s.data }

func (s *Segment) ID() int     { return s.id }
func (s *Segment) Size() int   { return s.size }
func (s *Segment) Key() uint32 { return s.key }

// Detach unmaps the segment from this process's address space without
// removing the kernel object (other attachers may still be using it).
func (s *Segment) Detach() error {
	if len(s.data) == 0 {
		return nil
	}
	err := unix.SysvShmDetach(uintptr(unsafe.Pointer(&s.data[0])))
	s.data = nil
	return err
}

// RemoveSegment marks the kernel segment for destruction (IPC_RMID); it is
// actually freed once every attached process detaches. This is the
// operation the monitor performs on heartbeat timeout.
func RemoveSegment(key uint32) error {
	id, err := unix.SysvShmGet(int(key), 0, 0)
	if err != nil {
		return nil // already gone
	}
	_, err = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
	return err
}
