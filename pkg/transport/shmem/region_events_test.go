package shmem

import (
	"testing"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionEventsFireNotifiesLiveSubscribers(t *testing.T) {
	var bus regionEvents
	var got []transport.RegionEvent
	bus.subscribe(func(ev transport.RegionEvent) { got = append(got, ev) })

	bus.fire(transport.RegionEvent{Kind: transport.RegionCreated, RegionID: 3})

	require.Len(t, got, 1)
	assert.Equal(t, transport.RegionCreated, got[0].Kind)
	assert.Equal(t, uint16(3), got[0].RegionID)
}

// TestRegionEventsReplaysHistoryToLateSubscriber mirrors the original's
// RegionEventSubscriptions test: events fired before anyone subscribed
// (region1 and region2's creation, in the original) must still be
// delivered once a subscriber attaches.
func TestRegionEventsReplaysHistoryToLateSubscriber(t *testing.T) {
	var bus regionEvents
	bus.fire(transport.RegionEvent{Kind: transport.RegionCreated, RegionID: 1})
	bus.fire(transport.RegionEvent{Kind: transport.RegionCreated, RegionID: 2})

	var got []transport.RegionEvent
	bus.subscribe(func(ev transport.RegionEvent) { got = append(got, ev) })

	require.Len(t, got, 2)
	assert.Equal(t, uint16(1), got[0].RegionID)
	assert.Equal(t, uint16(2), got[1].RegionID)
}

func TestRegionEventsUnsubscribeStopsDelivery(t *testing.T) {
	var bus regionEvents
	var got []transport.RegionEvent
	id := bus.subscribe(func(ev transport.RegionEvent) { got = append(got, ev) })
	bus.unsubscribe(id)

	bus.fire(transport.RegionEvent{Kind: transport.RegionDestroyed, RegionID: 1})

	assert.Empty(t, got)
}

func TestRegionEventsSubscribedReportsWhetherAnyoneIsAttached(t *testing.T) {
	var bus regionEvents
	assert.False(t, bus.subscribed())

	id := bus.subscribe(func(transport.RegionEvent) {})
	assert.True(t, bus.subscribed())

	bus.unsubscribe(id)
	assert.False(t, bus.subscribed())
}

// TestNewRegionFiresCreatedThroughOnEvent exercises the onEvent plumbing
// NewUnmanagedRegion wires to a factory's regionEvents, without needing a
// real SysV-backed factory. Destroy (and its RegionDestroyed event) needs
// an actually attached segment to detach, so this test does not cover it.
func TestNewRegionFiresCreatedThroughOnEvent(t *testing.T) {
	seg := newTestSegment(4096)
	var bus regionEvents

	NewRegion(5, seg, transport.RegionOptions{Size: 4096}, bus.fire)

	var got []transport.RegionEvent
	bus.subscribe(func(ev transport.RegionEvent) { got = append(got, ev) })
	require.Len(t, got, 1)
	assert.Equal(t, transport.RegionCreated, got[0].Kind)
	assert.Equal(t, uint16(5), got[0].RegionID)
}
