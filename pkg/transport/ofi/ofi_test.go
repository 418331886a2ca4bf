package ofi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

func TestEverySurfaceReturnsNotImplemented(t *testing.T) {
	f := New()
	assert.Equal(t, "ofi", f.Transport())

	_, err := f.NewMessage()
	assert.ErrorIs(t, err, transport.ErrNotImplemented)
	_, err = f.NewSocket(transport.Push, "x")
	assert.ErrorIs(t, err, transport.ErrNotImplemented)
	_, err = f.NewPoller()
	assert.ErrorIs(t, err, transport.ErrNotImplemented)
	_, err = f.NewUnmanagedRegion(transport.RegionOptions{})
	assert.ErrorIs(t, err, transport.ErrNotImplemented)
}

func TestInterruptFlagStillWorks(t *testing.T) {
	f := New()
	assert.False(t, f.Interrupted())
	f.Interrupt()
	assert.True(t, f.Interrupted())
	f.Resume()
	assert.False(t, f.Interrupted())
}
