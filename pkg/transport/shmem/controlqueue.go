package shmem

import (
	"fmt"
	"net"
	"os"
	"time"
)

// ControlQueue is the session's heartbeat channel (§4.7): a Unix datagram
// socket at a session-derived path. Every active device writes its id onto
// the queue at a fixed cadence; the monitor reads with a short timeout and
// treats a stretch of silence as "no heartbeats arrived".
type ControlQueue struct {
	path string
	conn *net.UnixConn
}

// ListenControlQueue opens (creating if necessary) the datagram socket the
// monitor reads from. Only one process — the monitor — should listen;
// devices dial and write.
func ListenControlQueue(path string) (*ControlQueue, error) {
	_ = os.Remove(path)
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("shmem: listen control queue %s: %w", path, err)
	}
	return &ControlQueue{path: path, conn: conn}, nil
}

// DialControlQueue opens a write-only handle a device uses to post
// heartbeats.
func DialControlQueue(path string) (*ControlQueue, error) {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("shmem: dial control queue %s: %w", path, err)
	}
	return &ControlQueue{path: path, conn: conn}, nil
}

// Heartbeat writes deviceID onto the queue (a device-side call).
func (q *ControlQueue) Heartbeat(deviceID string) error {
	_, err := q.conn.Write([]byte(deviceID))
	return err
}

// ReadHeartbeat reads one heartbeat, waiting at most timeout for it (the
// monitor passes a fixed 100ms), returning the originating device id.
func (q *ControlQueue) ReadHeartbeat(timeout time.Duration) (string, error) {
	if err := q.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	buf := make([]byte, 256)
	n, err := q.conn.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (q *ControlQueue) Close() error {
	err := q.conn.Close()
	if ua, ok := q.conn.LocalAddr().(*net.UnixAddr); ok {
		_ = os.Remove(ua.Name)
	}
	return err
}

// RemoveControlQueue deletes the socket file without needing an open
// handle (used by the monitor's cleanup pass).
func RemoveControlQueue(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
