// Package shmmonitor implements the standalone shared-memory monitor
// daemon of §4.7: a process separate from every device that watches a
// session's heartbeat traffic and reclaims the session's segments, region
// objects, and control queue once heartbeats stop arriving.
package shmmonitor

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/fairmqlog"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
)

// Config configures a Monitor per the fairmq-shm-monitor CLI surface of §6.
type Config struct {
	Session *shmem.Session

	// SelfDestruct exits the monitor process once it has cleaned up a
	// session it previously saw alive (a one-shot "clean up and leave").
	SelfDestruct bool

	// Interactive runs the single-character command loop instead of the
	// silent polling loop.
	Interactive bool

	// Timeout is the heartbeat silence threshold that triggers cleanup.
	Timeout time.Duration

	// RunAsDaemon additionally triggers cleanup when the main segment
	// itself cannot be opened for 2x Timeout (the device crashed before
	// ever heartbeating, or the segment was never created).
	RunAsDaemon bool
}

// Monitor is the runtime state of one fairmq-shm-monitor process.
type Monitor struct {
	cfg Config

	terminating atomic.Bool

	mu                 sync.Mutex
	lastHeartbeat      time.Time
	heartbeatTriggered bool
	seenOnce           bool
	deviceHeartbeats   map[string]time.Time

	cq *shmem.ControlQueue
}

// New constructs a Monitor for cfg's session, removing any stale control
// queue socket left behind by a previous, uncleanly-terminated monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	_ = shmem.RemoveControlQueue(cfg.Session.ControlSocketPath())

	return &Monitor{
		cfg:              cfg,
		lastHeartbeat:    time.Now(),
		deviceHeartbeats: make(map[string]time.Time),
	}, nil
}

// Run starts the heartbeat listener and blocks in either interactive or
// silent-polling mode until Stop is called or the session self-destructs.
func (m *Monitor) Run() error {
	cq, err := shmem.ListenControlQueue(m.cfg.Session.ControlSocketPath())
	if err != nil {
		return fmt.Errorf("shmmonitor: listen control queue: %w", err)
	}
	m.cq = cq

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.monitorHeartbeats()
	}()

	if m.cfg.Interactive {
		m.interactive()
	} else {
		for !m.terminating.Load() {
			time.Sleep(100 * time.Millisecond)
			m.checkSegment()
		}
	}

	wg.Wait()
	return nil
}

// Stop requests termination of the Run loop from outside (e.g. SIGINT).
func (m *Monitor) Stop() { m.terminating.Store(true) }

// HeartbeatAge reports how long it has been since the last heartbeat seen
// from any device in the session, for metrics collection.
func (m *Monitor) HeartbeatAge() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastHeartbeat)
}

func (m *Monitor) monitorHeartbeats() {
	defer func() { _ = m.cq.Close() }()
	for !m.terminating.Load() {
		deviceID, err := m.cq.ReadHeartbeat(100 * time.Millisecond)
		if err != nil {
			continue // timeout, or the listener was closed on Stop
		}
		now := time.Now()
		m.mu.Lock()
		m.heartbeatTriggered = true
		m.lastHeartbeat = now
		m.deviceHeartbeats[deviceID] = now
		m.mu.Unlock()
	}
}

// checkSegment is the silent-mode and interactive-mode poll tick of
// §4.7/Monitor.cxx's CheckSegment: it opens the main segment to confirm
// the session is still alive, and on a heartbeat-silence timeout (or, in
// daemon mode, a segment that cannot even be opened) runs Cleanup.
func (m *Monitor) checkSegment() {
	seg, err := shmem.OpenSegment(m.cfg.Session.ID())
	if err == nil {
		_ = seg.Detach()
		m.mu.Lock()
		m.seenOnce = true
		triggered := m.heartbeatTriggered
		since := time.Since(m.lastHeartbeat)
		m.mu.Unlock()

		if triggered && since > m.cfg.Timeout {
			fairmqlog.Info("shmmonitor: no heartbeats, cleaning up session")
			_ = m.Cleanup()
			m.mu.Lock()
			m.heartbeatTriggered = false
			m.mu.Unlock()
			if m.cfg.SelfDestruct {
				m.terminating.Store(true)
			}
		}
		return
	}

	m.mu.Lock()
	m.heartbeatTriggered = false
	seenOnce := m.seenOnce
	since := time.Since(m.lastHeartbeat)
	m.mu.Unlock()

	if m.cfg.RunAsDaemon && since > m.cfg.Timeout*2 {
		_ = m.Cleanup()
		if m.cfg.SelfDestruct {
			m.terminating.Store(true)
		}
	}
	if m.cfg.SelfDestruct && seenOnce {
		m.terminating.Store(true)
	}
}

// Cleanup reclaims a session's region objects and queues, then its
// management segment, then its main segment, mirroring Monitor.cxx's
// Cleanup ordering: regions before the management catalog that describes
// them, management before the main segment, main segment last.
func (m *Monitor) Cleanup() error {
	session := m.cfg.Session

	if mng, err := shmem.OpenManagementDBReadOnly(session.ManagementDBPath()); err == nil {
		regions, _ := mng.Regions()
		for _, r := range regions {
			fairmqlog.Info(fmt.Sprintf("shmmonitor: removing region %d", r.ID))
			_ = shmem.RemoveSegment(session.ID() + 0x10000 + uint32(r.ID))
			_ = shmem.RemoveControlQueue(fmt.Sprintf("%s/%s.sock", os.TempDir(), r.QueueName))
		}
		_ = mng.Close()
	} else {
		fairmqlog.Info("shmmonitor: no management segment found, no regions to clean up")
	}

	if err := os.Remove(session.ManagementDBPath()); err != nil && !os.IsNotExist(err) {
		fairmqlog.Errorf("shmmonitor: remove management segment", err)
	} else {
		fairmqlog.Info(fmt.Sprintf("shmmonitor: removed %s", session.MngSegmentName))
	}
	if err := shmem.RemoveSegment(session.ID()); err != nil {
		fairmqlog.Errorf("shmmonitor: remove main segment", err)
	} else {
		fairmqlog.Info(fmt.Sprintf("shmmonitor: removed %s", session.MainSegmentName))
	}
	if err := shmem.RemoveSegment(session.ID() + 1); err != nil {
		fairmqlog.Errorf("shmmonitor: remove refcount segment", err)
	}
	_ = shmem.RemoveControlQueue(session.ControlSocketPath())

	return nil
}
