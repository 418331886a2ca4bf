package shmem

import (
	"fmt"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/zeromq"
)

// Config configures a Factory per §4.7 and the --shm-* CLI surface of §6.
type Config struct {
	Session  *Session
	DeviceID string

	SegmentSize int
	Allocator   string // "rbtree_best_fit" (default) or "simple_seq_fit"

	// AltSegmentID, when non-zero, carves a second segment out of the same
	// session sharing the refcount segment (§4.7's "alternate id").
	AltSegmentID uint16

	ZeroOnCreation bool
	LockOnCreation bool

	BadAlloc RetryPolicy

	HeartbeatInterval time.Duration
}

// Factory is the shmem-backed transport.Factory. Header exchange rides a
// zeromq.Factory-produced socket (the small fixed-size {handle, size,
// region, hint} struct of §4.7 is all that ever crosses the wire); the
// payload itself is resolved against the locally mapped segment.
type Factory struct {
	*transport.InterruptFlag

	cfg Config

	headers *zeromq.Factory

	mainSeg  *Segment
	altSeg   *Segment
	refSeg   *Segment
	refs     *RefcountTable
	mainAllc Allocator
	altAllc  Allocator

	mng *ManagementDB
	hb  *heartbeater

	events  *regionEvents
	regions map[uint16]*Region
	nextRg  uint16
}

var _ transport.Factory = (*Factory)(nil)

// New creates the main and (optionally) alternate segments, the shared
// refcount segment, and the management database, and starts the
// heartbeat loop on the session's control queue.
func New(cfg Config) (*Factory, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 * 1024 * 1024
	}
	if cfg.BadAlloc.MaxAttempts == 0 {
		cfg.BadAlloc.MaxAttempts = -1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}

	mainSeg, _, err := AttachOrCreateSegment(cfg.Session.ID(), cfg.SegmentSize, cfg.ZeroOnCreation, cfg.LockOnCreation)
	if err != nil {
		return nil, err
	}
	refSeg, _, err := AttachOrCreateSegment(cfg.Session.ID()+1, maxRefcountSlots*refcountSlotSize, true, false)
	if err != nil {
		return nil, err
	}
	refs := NewRefcountTable(refSeg, maxRefcountSlots)

	mainAllc, err := NewAllocator(cfg.Allocator, cfg.SegmentSize)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		InterruptFlag: transport.NewInterruptFlag(),
		cfg:           cfg,
		headers:       zeromq.New(),
		mainSeg:       mainSeg,
		refSeg:        refSeg,
		refs:          refs,
		mainAllc:      mainAllc,
		events:        &regionEvents{},
		regions:       make(map[uint16]*Region),
	}

	// The main segment (region id 0) is never announced to remote peers —
	// it is attached locally by every device in the session rather than
	// registered in the management catalog — but its existence is still
	// observable in-process, mirroring the original Context constructor's
	// unconditional local_only event for id 0.
	f.events.fire(transport.RegionEvent{Kind: transport.RegionLocalOnly, RegionID: 0})

	if cfg.AltSegmentID != 0 {
		altSeg, _, err := AttachOrCreateSegment(cfg.Session.ID()+uint32(cfg.AltSegmentID), cfg.SegmentSize, cfg.ZeroOnCreation, cfg.LockOnCreation)
		if err != nil {
			return nil, err
		}
		altAllc, err := NewAllocator(cfg.Allocator, cfg.SegmentSize)
		if err != nil {
			return nil, err
		}
		f.altSeg, f.altAllc = altSeg, altAllc
		f.events.fire(transport.RegionEvent{Kind: transport.RegionLocalOnly, RegionID: cfg.AltSegmentID})
	}

	mng, err := OpenManagementDB(cfg.Session.ManagementDBPath())
	if err != nil {
		return nil, err
	}
	f.mng = mng

	hb, err := newHeartbeater(cfg.Session.ControlSocketPath(), cfg.DeviceID, cfg.HeartbeatInterval)
	if err != nil {
		return nil, err
	}
	f.hb = hb
	hb.start()

	return f, nil
}

const maxRefcountSlots = 1 << 16

func (f *Factory) Transport() string { return "shmem" }

// ManagementDB exposes the session's management segment so callers outside
// the package (metrics collection, diagnostics) can read its region
// catalog without reaching into factory internals.
func (f *Factory) ManagementDB() *ManagementDB { return f.mng }

func (f *Factory) Interrupt() { f.InterruptFlag.Set() }
func (f *Factory) Resume()    { f.InterruptFlag.Clear() }

// Close stops the heartbeat loop, closes the management db, and detaches
// every segment this factory mapped. It does not remove the kernel
// objects — that is the monitor's job on session teardown, or
// --shm-no-cleanup's opposite.
func (f *Factory) Close() error {
	f.hb.stop()
	_ = f.mng.Close()
	_ = f.mainSeg.Detach()
	if f.altSeg != nil {
		_ = f.altSeg.Detach()
	}
	_ = f.refSeg.Detach()
	return nil
}

func (f *Factory) arenaFor(regionID uint16) (arena, error) {
	switch {
	case regionID == 0:
		return &mainArena{id: 0, seg: f.mainSeg, allocator: f.mainAllc, refs: f.refs}, nil
	case regionID == f.cfg.AltSegmentID && f.altSeg != nil:
		return &mainArena{id: regionID, seg: f.altSeg, allocator: f.altAllc, refs: f.refs}, nil
	default:
		if r, ok := f.regions[regionID]; ok {
			return regionArena{r: r}, nil
		}
		return nil, fmt.Errorf("shmem: unknown region id %d", regionID)
	}
}

func (f *Factory) NewMessage() (transport.Message, error) {
	a, _ := f.arenaFor(0)
	return &Message{arena: a}, nil
}

func (f *Factory) NewMessageAligned(int) (transport.Message, error) {
	return f.NewMessage()
}

func (f *Factory) NewMessageSize(size int) (transport.Message, error) {
	a, _ := f.arenaFor(0)
	return NewMessage(a, size)
}

func (f *Factory) NewMessageSizeAligned(size, _ int) (transport.Message, error) {
	return f.NewMessageSize(size)
}

func (f *Factory) NewMessageFromBuffer(buf []byte, dealloc transport.Deallocator, hint any) (transport.Message, error) {
	a, _ := f.arenaFor(0)
	m, err := NewMessage(a, len(buf))
	if err != nil {
		return nil, err
	}
	copy(m.Data(), buf)
	if dealloc != nil {
		dealloc(buf, hint)
	}
	return m, nil
}

func (f *Factory) NewMessageFromRegion(region transport.Region, offset, size int, hint any) (transport.Message, error) {
	r, ok := region.(*Region)
	if !ok {
		return nil, fmt.Errorf("%w: region is not a shmem region", transport.ErrTransportMismatch)
	}
	return NewMessageFromRegion(r, offset, size, hint)
}

// AllocMessage is the shmem-specific allocation entry point that honors
// the §4.7 bad-alloc retry policy (NewMessageSize makes exactly one
// attempt, matching the plain transport.Factory contract all transports
// share).
func (f *Factory) AllocMessage(size int) (*Message, error) {
	a, err := f.arenaFor(0)
	if err != nil {
		return nil, err
	}
	ma := a.(*mainArena)
	handle, err := AllocWithRetry(ma.allocator, size, f.cfg.BadAlloc, f.Interrupted)
	if err != nil {
		return nil, err
	}
	if err := ma.refs.Register(ma.id, handle); err != nil {
		ma.allocator.Free(handle, size)
		return nil, err
	}
	return &Message{arena: ma, handle: handle, size: size, cap: size, owned: true}, nil
}

func (f *Factory) NewSocket(kind transport.SocketKind, id string) (transport.Socket, error) {
	header, err := f.headers.NewSocket(kind, id)
	if err != nil {
		return nil, err
	}
	return &Socket{kind: kind, header: header, factory: f}, nil
}

func (f *Factory) NewPoller(targets ...transport.PollTarget) (transport.Poller, error) {
	return f.headers.NewPoller(targets...)
}

// NewUnmanagedRegion creates a fresh segment of opts.Size, assigns it the
// next region id, and registers it in the management catalog.
func (f *Factory) NewUnmanagedRegion(opts transport.RegionOptions) (transport.Region, error) {
	f.nextRg++
	id := f.nextRg
	seg, _, err := AttachOrCreateSegment(f.cfg.Session.ID()+0x10000+uint32(id), opts.Size, opts.Create.ZeroOnCreation, opts.Create.LockPages)
	if err != nil {
		return nil, err
	}
	r := NewRegion(id, seg, opts, f.events.fire)
	f.regions[id] = r
	if err := f.mng.RegisterRegion(RegionMeta{ID: id, Size: opts.Size, QueueName: fmt.Sprintf("fmq_%s_rgq_%d", f.cfg.Session.Name, id), Created: time.Now()}); err != nil {
		return nil, err
	}
	return r, nil
}
