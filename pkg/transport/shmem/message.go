package shmem

import (
	"encoding/binary"
	"fmt"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

var byteOrder = binary.BigEndian

// Header is the small fixed-size wire payload of §4.7: what actually
// traverses a socket for a shmem message. The receiver resolves the
// payload pointer by mapping the same segment itself; only this struct is
// marshaled onto the underlying (zeromq) header socket. Parts carries the
// total number of frames in the multipart send this header belongs to (1
// for a single Send), so ReceiveMulti knows how many more headers to pull
// off the wire instead of guessing — the zeromq transport gets this for
// free from zmq4's own multipart framing, but the shmem header socket is
// just a sequence of independent frames, so the count has to ride along.
type Header struct {
	PayloadHandle uint64
	PayloadSize   uint32
	RegionID      uint16
	Hint          uint32
	Parts         uint16
}

const headerWireSize = 8 + 4 + 2 + 4 + 2

// MarshalBinary encodes the header into its fixed 20-byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerWireSize)
	byteOrder.PutUint64(buf[0:8], h.PayloadHandle)
	byteOrder.PutUint32(buf[8:12], h.PayloadSize)
	byteOrder.PutUint16(buf[12:14], h.RegionID)
	byteOrder.PutUint32(buf[14:18], h.Hint)
	byteOrder.PutUint16(buf[18:20], h.Parts)
	return buf, nil
}

// UnmarshalHeader decodes the fixed wire form produced by MarshalBinary.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) != headerWireSize {
		return Header{}, fmt.Errorf("shmem: header wire size %d, want %d", len(buf), headerWireSize)
	}
	return Header{
		PayloadHandle: byteOrder.Uint64(buf[0:8]),
		PayloadSize:   byteOrder.Uint32(buf[8:12]),
		RegionID:      byteOrder.Uint16(buf[12:14]),
		Hint:          byteOrder.Uint32(buf[14:18]),
		Parts:         byteOrder.Uint16(buf[18:20]),
	}, nil
}

// Message is the reference-counted transport.Message implementation of
// §4.7. Copy increments the shared refcount instead of duplicating bytes;
// Close decrements it and, at zero, frees the payload from its arena or
// notifies the owning region's release callback.
type Message struct {
	arena  arena
	handle int
	size   int // logical size, <= allocated size
	cap    int // size originally allocated, needed by free()
	hint   any

	owned bool // true once Close/Rebuild should release the handle
}

var _ transport.Message = (*Message)(nil)

// NewMessage allocates size bytes from a, registering a fresh refcount
// entry seeded at 1.
func NewMessage(a arena, size int) (*Message, error) {
	h, err := a.alloc(size)
	if err != nil {
		return nil, err
	}
	return &Message{arena: a, handle: h, size: size, cap: size, owned: true}, nil
}

// FromHeader reconstructs a message on the receiving side of a transfer:
// it does not allocate, but registers an additional reference against the
// handle the header names (the sender's allocation, now shared).
func FromHeader(a arena, hdr Header) (*Message, error) {
	m := &Message{arena: a, handle: int(hdr.PayloadHandle), size: int(hdr.PayloadSize), cap: int(hdr.PayloadSize), hint: hdr.Hint, owned: true}
	a.refcount().Ref(a.regionID(), m.handle)
	return m, nil
}

func (m *Message) Header() Header {
	hint, _ := m.hint.(uint32)
	return Header{
		PayloadHandle: uint64(m.handle),
		PayloadSize:   uint32(m.size),
		RegionID:      m.arena.regionID(),
		Hint:          hint,
	}
}

func (m *Message) Data() []byte {
	if m.arena == nil || m.size == 0 {
		return nil
	}
	b := m.arena.bytes()
	return b[m.handle : m.handle+m.size]
}

func (m *Message) Size() int         { return m.size }
func (m *Message) Alignment() int    { return 1 }
func (m *Message) Transport() string { return "shmem" }

func (m *Message) UsedSize(n int) error {
	if n == m.size {
		return nil
	}
	if n > m.size {
		return fmt.Errorf("shmem: used_size %d exceeds current size %d", n, m.size)
	}
	m.size = n
	return nil
}

// Rebuild releases the current handle (if owned) and allocates a fresh one
// per opts; shmem messages never accept an external buffer since the
// payload must live inside the arena to be reference-counted.
func (m *Message) Rebuild(opts ...transport.RebuildOption) error {
	o := transport.RebuildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ExternalBuf != nil {
		return fmt.Errorf("shmem: Rebuild with an external buffer is not supported")
	}
	if err := m.Close(); err != nil {
		return err
	}
	if o.Size <= 0 {
		m.size, m.cap, m.owned = 0, 0, false
		return nil
	}
	h, err := m.arena.alloc(o.Size)
	if err != nil {
		return err
	}
	m.handle, m.size, m.cap, m.owned = h, o.Size, o.Size, true
	return nil
}

// Copy resolves this message to the same payload as src: if src is also a
// shmem message backed by the same refcount table, the refcount is raised
// and no bytes move; otherwise (src from a different transport, or a shmem
// arena with its own independent refcount table) the payload is
// byte-copied into a freshly allocated shmem buffer, matching §4.7's
// "copy across segments must still be zero-copy at the refcount level,
// only across differing arenas does it fall back to a byte copy". The main
// and alternate segments are different regionIDs but share one refcount
// table (factory.go's f.refs), so they take the zero-copy path; an
// unmanaged region, which owns its own table, does not.
func (m *Message) Copy(src transport.Message) error {
	if other, ok := src.(*Message); ok && sameArena(m.arena, other.arena) {
		if err := m.Close(); err != nil {
			return err
		}
		other.arena.refcount().Ref(other.arena.regionID(), other.handle)
		m.arena, m.handle, m.size, m.cap, m.owned = other.arena, other.handle, other.size, other.cap, true
		return nil
	}

	data := src.Data()
	h, err := m.arena.alloc(len(data))
	if err != nil {
		return err
	}
	if err := m.Close(); err != nil {
		m.arena.free(h, len(data))
		return err
	}
	copy(m.arena.bytes()[h:h+len(data)], data)
	m.handle, m.size, m.cap, m.owned = h, len(data), len(data), true
	return nil
}

// sameArena reports whether a and b resolve handles against the same
// physical refcount table. Two arenas with different regionIDs (the main
// segment and the alternate segment) can still share one table, in which
// case a handle bump is enough; two arenas with distinct tables (e.g. two
// unmanaged regions) cannot, even if their regionIDs happen to match.
func sameArena(a, b arena) bool { return a.refcount() == b.refcount() }

// Close decrements the shared refcount; at zero it frees the payload from
// its arena (or, for a region-backed message, lets the region's release
// callback run — see region.go).
func (m *Message) Close() error {
	if !m.owned {
		return nil
	}
	m.owned = false
	if left := m.arena.refcount().Unref(m.arena.regionID(), m.handle); left == 0 {
		m.arena.free(m.handle, m.cap)
	}
	return nil
}
