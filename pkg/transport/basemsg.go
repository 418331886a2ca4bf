package transport

import "fmt"

// BaseMessage is a non-reference-counted Message implementation shared by
// the zeromq and ofi factories: plain byte-slice ownership, alignment
// honored by copying into a fresh aligned buffer, Copy always duplicates
// bytes (§4.3: "on non-counted transports, copy must be a byte-for-byte
// duplicate").
type BaseMessage struct {
	transport string
	buf       []byte
	used      int // logical size, <= len(buf)
	align     int
	dealloc   Deallocator
	hint      any
}

// NewBaseMessage builds a BaseMessage per the six construction variants of
// §4.3: size == -1 means "no buffer yet" (variants 1/2); externalBuf != nil
// is variant 5.
func NewBaseMessage(transportName string, size, align int, externalBuf []byte, dealloc Deallocator, hint any) (*BaseMessage, error) {
	if align < 1 {
		align = 1
	}
	m := &BaseMessage{transport: transportName, align: align}

	switch {
	case externalBuf != nil:
		m.buf = externalBuf
		m.used = len(externalBuf)
		m.dealloc = dealloc
		m.hint = hint
	case size < 0:
		// empty descriptor, no buffer
	default:
		m.buf = makeAligned(size, align)
		m.used = size
	}
	return m, nil
}

func makeAligned(size, align int) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	// Over-allocate and return the aligned sub-slice; Go's allocator
	// doesn't expose alignment directly, so alignment is enforced by hand.
	buf := make([]byte, size+align)
	off := alignOffset(buf, align)
	return buf[off : off+size : off+size]
}

func alignOffset(buf []byte, align int) int {
	if len(buf) == 0 || align <= 1 {
		return 0
	}
	addr := sliceAddr(buf)
	rem := addr % uintptr(align)
	if rem == 0 {
		return 0
	}
	return align - int(rem)
}

func (m *BaseMessage) Data() []byte      { return m.buf[:m.used] }
func (m *BaseMessage) Size() int         { return m.used }
func (m *BaseMessage) Alignment() int    { return m.align }
func (m *BaseMessage) Transport() string { return m.transport }

func (m *BaseMessage) UsedSize(n int) error {
	if n == m.used {
		return nil
	}
	if n > m.used {
		return fmt.Errorf("transport: used_size %d exceeds current size %d", n, m.used)
	}
	m.used = n
	return nil
}

func (m *BaseMessage) Rebuild(opts ...RebuildOption) error {
	o := RebuildOptions{Alignment: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if err := m.Close(); err != nil {
		return err
	}
	m.align = o.Alignment
	if m.align < 1 {
		m.align = 1
	}
	if o.ExternalBuf != nil {
		m.buf = o.ExternalBuf
		m.used = len(o.ExternalBuf)
		m.dealloc = o.Dealloc
		m.hint = o.Hint
		return nil
	}
	m.buf = makeAligned(o.Size, m.align)
	m.used = o.Size
	m.dealloc = nil
	m.hint = nil
	return nil
}

// Copy byte-copies src's visible data into a freshly allocated buffer of
// identical size, matching the non-counted-transport branch of §4.3.
func (m *BaseMessage) Copy(src Message) error {
	if err := m.Close(); err != nil {
		return err
	}
	data := src.Data()
	m.align = src.Alignment()
	m.buf = makeAligned(len(data), m.align)
	copy(m.buf, data)
	m.used = len(data)
	m.transport = src.Transport()
	return nil
}

func (m *BaseMessage) Close() error {
	if m.dealloc != nil {
		m.dealloc(m.buf, m.hint)
	}
	m.buf = nil
	m.used = 0
	m.dealloc = nil
	m.hint = nil
	return nil
}
