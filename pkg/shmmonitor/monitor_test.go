package shmmonitor

import (
	"os"
	"testing"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsTimeout(t *testing.T) {
	session := shmem.NewSessionForUID("monitor-test-session", 1000)
	m, err := New(Config{Session: session})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, m.cfg.Timeout)
}

func TestNewKeepsExplicitTimeout(t *testing.T) {
	session := shmem.NewSessionForUID("monitor-test-session", 1000)
	m, err := New(Config{Session: session, Timeout: 9 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, m.cfg.Timeout)
}

func TestNewRemovesStaleControlSocket(t *testing.T) {
	session := shmem.NewSessionForUID("monitor-stale-socket-session", 1001)
	path := session.ControlSocketPath()
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	defer os.Remove(path)

	_, err := New(Config{Session: session})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
