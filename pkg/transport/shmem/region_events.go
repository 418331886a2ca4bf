package shmem

import (
	"sync"
	"sync/atomic"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// regionEvents is the factory-level region lifecycle event bus of §3/§4.7:
// region announcement must be "observable to in-process subscribers of
// region events." The original keeps a single overwritable callback fed by
// a background delivery thread draining a queue; here every subscriber gets
// its own slot (more than one consumer — metrics, a console command, a
// test — can watch at once) and past events are retained and replayed to a
// newly attached subscriber, reproducing the original's "events fired
// before anyone subscribed are still delivered once someone does"
// behavior without needing a thread of its own.
type regionEvents struct {
	mu      sync.Mutex
	history []transport.RegionEvent

	subs   sync.Map // int64 subscription id -> func(transport.RegionEvent)
	nextID atomic.Int64
}

func (b *regionEvents) fire(ev transport.RegionEvent) {
	b.mu.Lock()
	b.history = append(b.history, ev)
	b.mu.Unlock()

	b.subs.Range(func(_, v any) bool {
		v.(func(transport.RegionEvent))(ev)
		return true
	})
}

// subscribe registers cb, replays every event fired before this call, and
// returns an id unsubscribe can use to remove it.
func (b *regionEvents) subscribe(cb func(transport.RegionEvent)) int64 {
	b.mu.Lock()
	past := append([]transport.RegionEvent(nil), b.history...)
	b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subs.Store(id, cb)
	for _, ev := range past {
		cb(ev)
	}
	return id
}

func (b *regionEvents) unsubscribe(id int64) {
	b.subs.Delete(id)
}

func (b *regionEvents) subscribed() bool {
	n := 0
	b.subs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n > 0
}

// SubscribeToRegionEvents registers cb for every RegionCreated/
// RegionDestroyed/RegionLocalOnly event this factory's regions produce,
// including ones already fired (the main segment's RegionLocalOnly
// announcement at New, and any unmanaged region created earlier). It
// returns a subscription id for UnsubscribeFromRegionEvents.
//
// This is a shmem.Factory-specific surface rather than part of the
// transport.Factory interface: zeromq and ofi never produce real regions
// (their NewUnmanagedRegion is a stub), so a generic method would be a
// no-op everywhere else.
func (f *Factory) SubscribeToRegionEvents(cb func(transport.RegionEvent)) int64 {
	return f.events.subscribe(cb)
}

// UnsubscribeFromRegionEvents removes the subscription id returned by
// SubscribeToRegionEvents.
func (f *Factory) UnsubscribeFromRegionEvents(id int64) {
	f.events.unsubscribe(id)
}

// SubscribedToRegionEvents reports whether any subscriber is currently
// attached.
func (f *Factory) SubscribedToRegionEvents() bool {
	return f.events.subscribed()
}
