package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/zeromq"
)

func zeromqLookup(tag string) (transport.Factory, error) {
	return zeromq.New(), nil
}

func TestBuildChannelsValidatesAndGroupsByName(t *testing.T) {
	opts := []ChannelOptions{
		{Name: "data", Type: "push", Method: "bind", Address: "tcp://*:5555", NumSockets: 2},
		{Name: "ctrl", Type: "pair", Method: "connect", Address: "tcp://localhost:5556", NumSockets: 1},
	}

	chans, err := BuildChannels(opts, "zeromq", zeromqLookup)
	require.NoError(t, err)

	require.Len(t, chans["data"], 2)
	assert.Equal(t, 0, chans["data"][0].SubIndex())
	assert.Equal(t, 1, chans["data"][1].SubIndex())
	assert.True(t, chans["data"][0].IsValidated())

	require.Len(t, chans["ctrl"], 1)
	assert.Equal(t, transport.MethodConnect, chans["ctrl"][0].Method())
}

func TestBuildChannelsRejectsUnknownSocketKind(t *testing.T) {
	opts := []ChannelOptions{{Name: "data", Type: "bogus", Method: "bind", Address: "tcp://*:5555"}}
	_, err := BuildChannels(opts, "zeromq", zeromqLookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestBuildChannelsRejectsUnknownTransportTag(t *testing.T) {
	opts := []ChannelOptions{{Name: "data", Type: "push", Method: "bind", Address: "tcp://*:5555"}}
	_, err := BuildChannels(opts, "nonexistent", func(tag string) (transport.Factory, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)
}

func TestShmemConfigCopiesSegmentSizeAndAllocator(t *testing.T) {
	f := &Flags{Session: "run1", ShmSegmentSize: 1 << 20, ShmAllocation: "rbtree_best_fit"}
	cfg := f.ShmemConfig()
	assert.Equal(t, 1<<20, cfg.SegmentSize)
	assert.Equal(t, "rbtree_best_fit", cfg.Allocator)
}

func TestShmemConfigOverridesSessionIDWhenShmIDSet(t *testing.T) {
	f := &Flags{Session: "run1", ShmID: 0xdeadbeef}
	cfg := f.ShmemConfig()
	assert.Equal(t, uint32(0xdeadbeef), cfg.Session.ID())
}

func TestShmemConfigUnboundsRetryWhenThrowBadAllocDisabled(t *testing.T) {
	f := &Flags{Session: "run1", ShmThrowBadAlloc: false, BadAllocMaxAttempts: 0}
	cfg := f.ShmemConfig()
	assert.Equal(t, -1, cfg.BadAlloc.MaxAttempts)
}
