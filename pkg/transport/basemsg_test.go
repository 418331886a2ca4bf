package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUsedSizeShrink covers P5: shrinking declares a logical size and never
// reallocates; growing is rejected.
func TestUsedSizeShrink(t *testing.T) {
	m, err := NewBaseMessage("zeromq", 6, 1, nil, nil, nil)
	require.NoError(t, err)
	copy(m.Data(), []byte("ABCDEF"))

	require.NoError(t, m.UsedSize(2))
	assert.Equal(t, []byte("AB"), m.Data())
	assert.Equal(t, 2, m.Size())

	err = m.UsedSize(1000)
	assert.Error(t, err, "growing must be rejected")

	require.NoError(t, m.UsedSize(0))
	assert.Equal(t, 0, m.Size())
}

// TestAlignment covers P6: construction and rebuild honor alignment, copy
// preserves it.
func TestAlignment(t *testing.T) {
	for _, align := range []int{1, 8, 64} {
		m, err := NewBaseMessage("zeromq", 10, align, nil, nil, nil)
		require.NoError(t, err)
		addr := sliceAddr(m.Data())
		assert.Equal(t, uintptr(0), addr%uintptr(align), "align=%d", align)

		require.NoError(t, m.Rebuild(WithSize(20), WithAlignment(align*2)))
		addr = sliceAddr(m.Data())
		assert.Equal(t, uintptr(0), addr%uintptr(align*2))

		var dst BaseMessage
		dst.transport = "zeromq"
		require.NoError(t, dst.Copy(m))
		assert.Equal(t, m.Alignment(), dst.Alignment())
		dstAddr := sliceAddr(dst.Data())
		assert.Equal(t, uintptr(0), dstAddr%uintptr(dst.Alignment()))
	}
}

func TestCopyByteDuplicatesOnNonCountedTransport(t *testing.T) {
	src, err := NewBaseMessage("zeromq", 3, 1, nil, nil, nil)
	require.NoError(t, err)
	copy(src.Data(), []byte("xyz"))

	var dst BaseMessage
	require.NoError(t, dst.Copy(src))
	assert.Equal(t, src.Data(), dst.Data())

	// Mutate src; dst must be unaffected (byte-for-byte duplicate, not a
	// shared view).
	src.Data()[0] = 'Z'
	assert.Equal(t, byte('x'), dst.Data()[0])
}

func TestRebuildInvokesDeallocatorExactlyOnce(t *testing.T) {
	calls := 0
	dealloc := func([]byte, any) { calls++ }
	m, err := NewBaseMessage("zeromq", 4, 1, nil, nil, nil)
	require.NoError(t, err)
	m.dealloc = dealloc

	require.NoError(t, m.Rebuild(WithSize(1)))
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, calls, "Close after Rebuild must not invoke the already-cleared deallocator again")
}

func TestWrapForeignEmptyMessageGetsFreshNative(t *testing.T) {
	native := &stubFactory{}
	foreign, err := NewBaseMessage("shmem", -1, 1, nil, nil, nil)
	require.NoError(t, err)

	wrapped, err := WrapForeign(native, foreign)
	require.NoError(t, err)
	assert.Equal(t, "native", wrapped.Transport())
}

func TestWrapForeignNonEmptyWrapsWithDeallocator(t *testing.T) {
	native := &stubFactory{}
	foreign, err := NewBaseMessage("shmem", 4, 1, nil, nil, nil)
	require.NoError(t, err)

	closed := false
	foreign.dealloc = func([]byte, any) { closed = true }

	wrapped, err := WrapForeign(native, foreign)
	require.NoError(t, err)
	require.NoError(t, wrapped.Close())
	assert.True(t, closed, "closing the wrapping message must release the foreign descriptor")
}

// stubFactory is a minimal Factory used only to exercise WrapForeign.
type stubFactory struct{}

func (f *stubFactory) Transport() string { return "native" }
func (f *stubFactory) NewMessage() (Message, error) {
	return NewBaseMessage("native", -1, 1, nil, nil, nil)
}
func (f *stubFactory) NewMessageAligned(align int) (Message, error) {
	return NewBaseMessage("native", -1, align, nil, nil, nil)
}
func (f *stubFactory) NewMessageSize(size int) (Message, error) {
	return NewBaseMessage("native", size, 1, nil, nil, nil)
}
func (f *stubFactory) NewMessageSizeAligned(size, align int) (Message, error) {
	return NewBaseMessage("native", size, align, nil, nil, nil)
}
func (f *stubFactory) NewMessageFromBuffer(buf []byte, dealloc Deallocator, hint any) (Message, error) {
	return NewBaseMessage("native", -1, 1, buf, dealloc, hint)
}
func (f *stubFactory) NewMessageFromRegion(region Region, offset, size int, hint any) (Message, error) {
	return NewBaseMessage("native", -1, 1, region.Bytes()[offset:offset+size], nil, hint)
}
func (f *stubFactory) NewSocket(kind SocketKind, id string) (Socket, error) { return nil, ErrNotImplemented }
func (f *stubFactory) NewPoller(targets ...PollTarget) (Poller, error)      { return nil, ErrNotImplemented }
func (f *stubFactory) NewUnmanagedRegion(opts RegionOptions) (Region, error) {
	return nil, ErrNotImplemented
}
func (f *stubFactory) Interrupt()        {}
func (f *stubFactory) Resume()           {}
func (f *stubFactory) Interrupted() bool { return false }
