package shmem

import (
	"sync"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// Region is an unmanaged region (§3/§4.7): memory the user allocates and
// registers with the transport, not a sub-allocation of the main segment.
// Messages built over it are non-owning views; when every view into a
// block is released the region's OnRelease callback fires, either once per
// block or, when BulkRelease is set, batched over a small coalescing
// window.
type Region struct {
	id   uint16
	seg  *Segment
	refs *RefcountTable

	linger      time.Duration
	onRelease   func(blocks []transport.ReleasedBlock)
	bulkRelease bool

	mu       sync.Mutex
	pending  []transport.ReleasedBlock
	flushing bool

	destroyed bool
	onDestroy func(kind transport.RegionEventKind, id uint16)
}

var _ transport.Region = (*Region)(nil)

// NewRegion creates an unmanaged region of the given id backed by its own
// SysV segment and notifies onEvent with RegionCreated (§3's "announcement
// is observable to in-process subscribers").
func NewRegion(id uint16, seg *Segment, opts transport.RegionOptions, onEvent func(transport.RegionEvent)) *Region {
	r := &Region{
		id:          id,
		seg:         seg,
		refs:        NewRefcountTable(seg, 4096),
		linger:      opts.Linger,
		onRelease:   opts.OnRelease,
		bulkRelease: opts.BulkRelease,
	}
	if onEvent != nil {
		onEvent(transport.RegionEvent{Kind: transport.RegionCreated, RegionID: id})
		r.onDestroy = func(kind transport.RegionEventKind, id uint16) {
			onEvent(transport.RegionEvent{Kind: kind, RegionID: id})
		}
	}
	return r
}

func (r *Region) ID() uint16     { return r.id }
func (r *Region) Bytes() []byte  { return r.seg.Bytes() }
func (r *Region) Size() int      { return r.seg.Size() }
func (r *Region) Flags() uint64  { return 0 }
func (r *Region) Pointer() uintptr {
	b := r.seg.Bytes()
	if len(b) == 0 {
		return 0
	}
	return bytesAddr(b)
}

// regionArena adapts Region to the internal arena interface consumed by
// Message; view lifetimes are tracked the same way main-segment handles
// are, but release notifies the region's callback instead of an Allocator.
type regionArena struct{ r *Region }

func (a regionArena) regionID() uint16         { return a.r.id }
func (a regionArena) bytes() []byte            { return a.r.seg.Bytes() }
func (a regionArena) refcount() *RefcountTable { return a.r.refs }

func (a regionArena) alloc(int) (int, error) {
	return 0, transport.ErrNotImplemented // views are created directly, see NewMessageFromRegion
}

func (a regionArena) free(handle, size int) {
	block := transport.ReleasedBlock{Pointer: a.r.Pointer() + uintptr(handle), Size: size}
	if a.r.onRelease == nil {
		return
	}
	if !a.r.bulkRelease {
		a.r.onRelease([]transport.ReleasedBlock{block})
		return
	}
	a.r.queueBulkRelease(block)
}

// queueBulkRelease buffers block and schedules a flush on a short
// coalescing window if one is not already pending, matching §4.7's "one
// call with a vector of all blocks collected within a small coalescing
// window".
func (r *Region) queueBulkRelease(block transport.ReleasedBlock) {
	r.mu.Lock()
	r.pending = append(r.pending, block)
	alreadyFlushing := r.flushing
	r.flushing = true
	r.mu.Unlock()

	if alreadyFlushing {
		return
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.mu.Lock()
		blocks := r.pending
		r.pending = nil
		r.flushing = false
		cb := r.onRelease
		r.mu.Unlock()
		if cb != nil && len(blocks) > 0 {
			cb(blocks)
		}
	}()
}

// NewMessageFromRegion creates a non-owning view into region spanning
// [offset, offset+size), registering a fresh reference.
func NewMessageFromRegion(region *Region, offset, size int, hint any) (*Message, error) {
	a := regionArena{r: region}
	if err := region.refs.Register(region.id, offset); err != nil {
		region.refs.Ref(region.id, offset) // already viewed once; add another reference
	}
	return &Message{arena: a, handle: offset, size: size, cap: size, hint: hint, owned: true}, nil
}

// Destroy lingers for the configured duration (giving outstanding peer
// acknowledgements time to arrive, §4.7) before detaching the region's
// backing segment. It only detaches: the kernel segment is not removed,
// whatever RemoveOnDestroy was set to at creation.
func (r *Region) Destroy() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	r.destroyed = true
	r.mu.Unlock()

	if r.linger > 0 {
		time.Sleep(r.linger)
	}
	if r.onDestroy != nil {
		r.onDestroy(transport.RegionDestroyed, r.id)
	}
	return r.seg.Detach()
}
