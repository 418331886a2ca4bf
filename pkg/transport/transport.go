// Package transport defines the contracts shared by every transport
// backend (zeromq, shmem, ofi): messages, sockets, pollers, and unmanaged
// regions. Concrete factories live in the transport/zeromq, transport/shmem
// and transport/ofi subpackages; this package also houses the interrupt
// flag and the native short-timeout discipline all of them share.
package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors (§7). Transient conditions (EAGAIN/EINTR-equivalent) are
// recovered locally by retrying and never surface as these errors; these
// are reserved for the outcomes a caller must react to.
var (
	ErrTimeout           = errors.New("transport: timeout")
	ErrInterrupted       = errors.New("transport: interrupted")
	ErrSocket            = errors.New("transport: socket error")
	ErrPoller            = errors.New("transport: poller error")
	ErrTransportMismatch = errors.New("transport: region/transport mismatch")
	ErrContext           = errors.New("transport: context initialization failed")
	ErrNotImplemented    = errors.New("transport: not yet implemented")
)

// NativeShortTimeout is the granularity at which a blocking transfer loop
// re-checks its deadline and the interrupt flag (§5: "nominally 100 ms").
const NativeShortTimeout = 100 * time.Millisecond

// WaitForever and TryOnce are the two timeout sentinels of §4.3: -1 means
// block until interrupted, 0 means try exactly once.
const (
	WaitForever time.Duration = -1
	TryOnce     time.Duration = 0
)

// SocketKind enumerates the socket kinds of §3.
type SocketKind int

const (
	Push SocketKind = iota
	Pull
	Publish
	Subscribe
	Request
	Reply
	Pair
	Dealer
	Router
	XSub
	XPub
)

func (k SocketKind) String() string {
	switch k {
	case Push:
		return "push"
	case Pull:
		return "pull"
	case Publish:
		return "pub"
	case Subscribe:
		return "sub"
	case Request:
		return "req"
	case Reply:
		return "rep"
	case Pair:
		return "pair"
	case Dealer:
		return "dealer"
	case Router:
		return "router"
	case XSub:
		return "xsub"
	case XPub:
		return "xpub"
	default:
		return "unknown"
	}
}

// Method is a channel's bind/connect method.
type Method int

const (
	MethodBind Method = iota
	MethodConnect
)

// Deallocator releases an externally-owned buffer handed to a message via
// the construction-variant-5 constructor. It is invoked exactly once: on
// message destruction, or when the buffer is ceded to the transport after a
// successful send.
type Deallocator func(buf []byte, hint any)

// Message is the contract of §3/§4.3. Implementations are exclusively
// owned until handed to Socket.Send, which moves ownership into the
// transport.
type Message interface {
	// Data returns the current logical view of the buffer (after any
	// UsedSize shrink).
	Data() []byte
	// Size is the logical size, honoring a prior UsedSize shrink.
	Size() int
	// Alignment is the alignment the backing buffer is guaranteed to
	// satisfy; 1 means unaligned.
	Alignment() int
	// Transport names the owning transport ("zeromq", "shmem", "ofi").
	Transport() string
	// UsedSize declares the logical size to n. n == Size() is a no-op;
	// n < Size() is a non-reallocating shrink; n > Size() is an error.
	UsedSize(n int) error
	// Rebuild releases the current buffer via its deallocator and
	// re-initializes the message per opts.
	Rebuild(opts ...RebuildOption) error
	// Copy makes this message resolve to the same payload as src. On
	// reference-counted transports this raises the shared refcount; on
	// non-counted transports it byte-copies into a fresh buffer.
	Copy(src Message) error
	// Close releases the message's resources, invoking its deallocator or
	// decrementing its refcount as appropriate.
	Close() error
}

// RebuildOptions configures Message.Rebuild; zero value means "empty,
// unaligned, no buffer" (construction variant 1).
type RebuildOptions struct {
	Size        int
	Alignment   int
	ExternalBuf []byte
	Dealloc     Deallocator
	Hint        any
}

// RebuildOption mutates RebuildOptions.
type RebuildOption func(*RebuildOptions)

func WithSize(size int) RebuildOption {
	return func(o *RebuildOptions) { o.Size = size }
}

func WithAlignment(align int) RebuildOption {
	return func(o *RebuildOptions) { o.Alignment = align }
}

func WithExternalBuffer(buf []byte, dealloc Deallocator, hint any) RebuildOption {
	return func(o *RebuildOptions) {
		o.ExternalBuf = buf
		o.Dealloc = dealloc
		o.Hint = hint
	}
}

// Socket is the contract of §4.3.
type Socket interface {
	Kind() SocketKind
	// Send blocks for up to timeout, honoring WaitForever/TryOnce and the
	// interrupt flag, and returns bytes transferred or one of
	// ErrTimeout/ErrInterrupted/ErrSocket.
	Send(msg Message, timeout time.Duration) (int, error)
	Receive(msg Message, timeout time.Duration) (int, error)
	// SendMulti/ReceiveMulti transfer a multipart message atomically: the
	// peer observes either every part or none (§4.3, P11).
	SendMulti(parts []Message, timeout time.Duration) (int, error)
	ReceiveMulti(timeout time.Duration) ([]Message, error)
	TrySend(msg Message) (int, error)
	TryReceive(msg Message) (int, error)
	// NumPeers returns an approximate connected-peer count, read from the
	// transport's own connection bookkeeping at the time of the call.
	NumPeers() int
	Close() error
}

// Binder is implemented by sockets whose transport has a real notion of
// network bind/connect (zeromq, and shmem through its zeromq header
// socket); ofi's stub sockets
// do not implement it. Channel type-asserts for it before calling.
type Binder interface {
	Bind(address string) error
	Connect(address string) error
}

// Region is the contract of §3/§4.7: a user-allocated area registered with
// a transport for zero-copy sending.
type Region interface {
	ID() uint16
	Pointer() uintptr
	Bytes() []byte
	Size() int
	Flags() uint64
	Destroy() error
}

// RegionEventKind distinguishes the three observable region lifecycle
// events of §3.
type RegionEventKind int

const (
	RegionCreated RegionEventKind = iota
	RegionDestroyed
	RegionLocalOnly
)

// RegionEvent is delivered to in-process subscribers of region lifecycle
// events (§4.7).
type RegionEvent struct {
	Kind     RegionEventKind
	RegionID uint16
}

// ReleasedBlock is one block released from a region view, passed to the
// region's release callback (§3).
type ReleasedBlock struct {
	Pointer uintptr
	Size    int
	Hint    any
}

// PollTarget is the minimal surface a Poller needs from a channel: its
// name, subchannel index, and underlying socket. The channel package
// implements this; transport cannot import channel without a cycle.
type PollTarget interface {
	Name() string
	SubIndex() int
	Socket() Socket
}

// Poller is the contract of §4.3.
type Poller interface {
	Poll(timeout time.Duration) error
	CheckInput(idx int) bool
	CheckOutput(idx int) bool
	CheckInputNamed(name string, subIndex int) bool
	CheckOutputNamed(name string, subIndex int) bool
}

// RegionCreationFlags mirrors §3's creation-flag set for an unmanaged
// region.
type RegionCreationFlags struct {
	LockPages       bool
	ZeroOnCreation  bool
	RemoveOnDestroy bool
	BackingFile     string
}

// RegionOptions configures Factory.NewUnmanagedRegion.
type RegionOptions struct {
	Size        int
	Flags       uint64
	Create      RegionCreationFlags
	Linger      time.Duration
	OnRelease   func(blocks []ReleasedBlock)
	BulkRelease bool
}

// Factory is the polymorphic family of §4.3: one instance per transport
// tag, producing messages, sockets, pollers, and regions.
type Factory interface {
	Transport() string

	NewMessage() (Message, error)
	NewMessageAligned(align int) (Message, error)
	NewMessageSize(size int) (Message, error)
	NewMessageSizeAligned(size, align int) (Message, error)
	NewMessageFromBuffer(buf []byte, dealloc Deallocator, hint any) (Message, error)
	NewMessageFromRegion(region Region, offset, size int, hint any) (Message, error)

	NewSocket(kind SocketKind, id string) (Socket, error)
	NewPoller(targets ...PollTarget) (Poller, error)
	NewUnmanagedRegion(opts RegionOptions) (Region, error)

	// Interrupt sets the interrupt flag read by every blocking transfer
	// created by this factory; Resume clears it. The device runtime calls
	// these on every FSM state exit/entry (§4.6).
	Interrupt()
	Resume()
	Interrupted() bool
}

// InterruptFlag is the shared, per-factory interrupt flag of §4.6/§5.
// Embed it in a Factory implementation and consult Interrupted between polling
// iterations of a blocking transfer loop.
type InterruptFlag struct {
	flag atomic.Bool
	mu   sync.Mutex
	cond *sync.Cond
}

func NewInterruptFlag() *InterruptFlag {
	f := &InterruptFlag{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *InterruptFlag) Set() {
	f.flag.Store(true)
	f.mu.Lock()
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *InterruptFlag) Clear() {
	f.flag.Store(false)
}

func (f *InterruptFlag) Interrupted() bool {
	return f.flag.Load()
}

// WrapForeign adapts a message produced by a different transport so it can
// be handed to a socket of this transport (§4.3 "type compatibility"): a
// non-empty buffer is wrapped with a deallocator that releases the foreign
// descriptor; an empty buffer is replaced with a fresh native empty
// message.
func WrapForeign(native Factory, foreign Message) (Message, error) {
	if foreign.Size() == 0 {
		return native.NewMessage()
	}
	data := foreign.Data()
	return native.NewMessageFromBuffer(data, func([]byte, any) {
		_ = foreign.Close()
	}, nil)
}
