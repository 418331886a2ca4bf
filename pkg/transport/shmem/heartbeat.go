package shmem

import (
	"time"
)

// heartbeater posts this device's id onto the session's control queue at
// a fixed cadence (§4.7), so the monitor can tell it is still alive.
type heartbeater struct {
	q        *ControlQueue
	deviceID string
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newHeartbeater(path, deviceID string, interval time.Duration) (*heartbeater, error) {
	q, err := DialControlQueue(path)
	if err != nil {
		return nil, err
	}
	return &heartbeater{q: q, deviceID: deviceID, interval: interval, stopCh: make(chan struct{}), doneCh: make(chan struct{})}, nil
}

func (h *heartbeater) start() {
	go func() {
		defer close(h.doneCh)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		_ = h.q.Heartbeat(h.deviceID)
		for {
			select {
			case <-ticker.C:
				_ = h.q.Heartbeat(h.deviceID)
			case <-h.stopCh:
				return
			}
		}
	}()
}

func (h *heartbeater) stop() {
	close(h.stopCh)
	<-h.doneCh
	_ = h.q.Close()
}
