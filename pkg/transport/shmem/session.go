// Package shmem implements the shared-memory transport of §4.7: a SysV
// main segment carved by a pluggable allocator, a bbolt-backed management
// segment, a datagram control queue for heartbeats, and reference-counted
// messages whose refcount lives inside the mapped segment itself so a peer
// process attaching the same segment id participates in the same count.
package shmem

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
)

// Session names the three resources of §4.7 off of a session name and the
// current OS user id, the way the original derives its segment key: the
// name alone is not unique across users on a shared host, so the uid folds
// into the hash instead of being appended as a random UUID.
type Session struct {
	Name string
	UID  int

	MainSegmentName string
	MngSegmentName  string
	ControlQueueName string

	// id is the SysV IPC key derived from (Name, UID); OverrideID replaces
	// it (the --shmid CLI escape hatch of §6).
	id uint32
}

// NewSession derives a session from sessionName and the current process's
// uid (os.Getuid()).
func NewSession(sessionName string) *Session {
	return NewSessionForUID(sessionName, os.Getuid())
}

// NewSessionForUID is NewSession with an explicit uid, used by tests and by
// the monitor (which runs as a different, but co-located, process).
func NewSessionForUID(sessionName string, uid int) *Session {
	s := &Session{
		Name:             sessionName,
		UID:              uid,
		MainSegmentName:  "fmq_" + sessionName + "_main",
		MngSegmentName:   "fmq_" + sessionName + "_mng",
		ControlQueueName: "fmq_" + sessionName + "_cq",
	}
	s.id = deriveID(sessionName, uid)
	return s
}

// ID returns the session's derived SysV IPC key.
func (s *Session) ID() uint32 { return s.id }

// OverrideID replaces the derived id with an explicit one (--shmid).
func (s *Session) OverrideID(id uint32) { s.id = id }

func deriveID(name string, uid int) uint32 {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d", name, uid)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// ControlSocketPath is the filesystem path of the Unix datagram socket
// backing the session's control queue (§4.7's heartbeat channel).
func (s *Session) ControlSocketPath() string {
	return fmt.Sprintf("%s/%s.sock", os.TempDir(), s.ControlQueueName)
}

// ManagementDBPath is the bbolt file path backing the management segment.
func (s *Session) ManagementDBPath() string {
	return fmt.Sprintf("%s/%s.db", os.TempDir(), s.MngSegmentName)
}

// RegionName names the n-th unmanaged region's backing segment, mirroring
// the original's "fmq_<session>_rg_<n>" naming.
func (s *Session) RegionName(regionID uint16) string {
	return fmt.Sprintf("fmq_%s_rg_%d", s.Name, regionID)
}
