package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDIsDeterministicPerNameAndUID(t *testing.T) {
	a := NewSessionForUID("physics-run-1", 1000)
	b := NewSessionForUID("physics-run-1", 1000)
	assert.Equal(t, a.ID(), b.ID())
}

func TestSessionIDDiffersAcrossUIDs(t *testing.T) {
	a := NewSessionForUID("physics-run-1", 1000)
	b := NewSessionForUID("physics-run-1", 1001)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSessionIDDiffersAcrossNames(t *testing.T) {
	a := NewSessionForUID("physics-run-1", 1000)
	b := NewSessionForUID("physics-run-2", 1000)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSessionOverrideIDReplacesDerivedValue(t *testing.T) {
	s := NewSessionForUID("physics-run-1", 1000)
	derived := s.ID()
	s.OverrideID(0xdeadbeef)
	assert.NotEqual(t, derived, s.ID())
	assert.Equal(t, uint32(0xdeadbeef), s.ID())
}

func TestSessionResourceNamesAreSessionScoped(t *testing.T) {
	s := NewSessionForUID("physics-run-1", 1000)
	assert.Equal(t, "fmq_physics-run-1_main", s.MainSegmentName)
	assert.Equal(t, "fmq_physics-run-1_mng", s.MngSegmentName)
	assert.Equal(t, "fmq_physics-run-1_cq", s.ControlQueueName)
	assert.Contains(t, s.ControlSocketPath(), s.ControlQueueName)
	assert.Contains(t, s.ManagementDBPath(), s.MngSegmentName)
	assert.Contains(t, s.RegionName(3), "_rg_3")
}
