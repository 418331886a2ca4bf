package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairRootGroup/fairmq-go/pkg/channel"
	"github.com/FairRootGroup/fairmq-go/pkg/property"
	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// observeStates subscribes a channel of every state the main machine
// actually enters, so a test can wait for a precise sequence instead of
// racing the framework's own Auto-transitions with a Current() poll.
func observeStates(d *Device) <-chan State {
	ch := make(chan State, 64)
	d.main.OnStateChange("test-observer", func(newState, _ State) {
		ch <- newState
	})
	return ch
}

func expectState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	select {
	case got := <-states:
		require.Equal(t, want, got, "unexpected state in sequence")
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %v", want)
	}
}

// TestFullLifecycleRunsEveryHook drives a device through the entire §4.5
// state sequence and asserts every user hook fired in order, then exits
// cleanly after the Running loop self-limits and the test enqueues End.
func TestFullLifecycleRunsEveryHook(t *testing.T) {
	var fired []string
	hooks := Hooks{
		Init:     func(*Device) error { fired = append(fired, "Init"); return nil },
		Bind:     func(*Device) error { fired = append(fired, "Bind"); return nil },
		Connect:  func(*Device) error { fired = append(fired, "Connect"); return nil },
		InitTask: func(*Device) error { fired = append(fired, "InitTask"); return nil },
		PreRun:   func(*Device) error { fired = append(fired, "PreRun"); return nil },
		Run: func(*Device) (bool, error) {
			fired = append(fired, "Run")
			return false, nil // run exactly once then fall through
		},
		PostRun:   func(*Device) error { fired = append(fired, "PostRun"); return nil },
		ResetTask: func(*Device) error { fired = append(fired, "ResetTask"); return nil },
		Reset:     func(*Device) error { fired = append(fired, "Reset"); return nil },
	}

	d := New("dev-1", property.New(), hooks)
	f := &fakeFactory{}
	d.RegisterTransport("fake", f)

	ch := channel.New("data", 0, f)
	ch.SetKind(transport.Push).SetMethod(transport.MethodConnect).SetAddress("fake://x")
	d.AddChannel("data", ch)

	states := observeStates(d)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	require.NoError(t, d.ChangeDeviceState("", InitDevice))
	expectState(t, states, InitializingDevice)
	expectState(t, states, Initialized)

	require.NoError(t, d.ChangeDeviceState("", Bind))
	expectState(t, states, Binding)
	expectState(t, states, Bound)

	require.NoError(t, d.ChangeDeviceState("", Connect))
	expectState(t, states, Connecting)
	expectState(t, states, DeviceReady)

	require.NoError(t, d.ChangeDeviceState("", InitTask))
	expectState(t, states, InitializingTask)
	expectState(t, states, Ready)

	require.NoError(t, d.ChangeDeviceState("", Run))
	expectState(t, states, Running)
	// Run returns false once, so the device auto-transitions Running->Ready
	// without any external Stop.
	expectState(t, states, Ready)

	require.NoError(t, d.ChangeDeviceState("", ResetTask))
	expectState(t, states, ResettingTask)
	expectState(t, states, DeviceReady)

	require.NoError(t, d.ChangeDeviceState("", ResetDevice))
	expectState(t, states, ResettingDevice)
	expectState(t, states, Idle)

	require.NoError(t, d.ChangeDeviceState("", End))
	expectState(t, states, Exiting)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not exit")
	}

	assert.Equal(t, []string{"Init", "Bind", "Connect", "InitTask", "PreRun", "Run", "PostRun", "ResetTask", "Reset"}, fired)
}

// TestRunningLoopStopsOnConcurrentStop covers the "Run loops must check a
// pending-state flag" guarantee of §5: a Stop enqueued from another
// goroutine while Run keeps returning true must end the loop without a
// second, now-illegal Stop being enqueued.
func TestRunningLoopStopsOnConcurrentStop(t *testing.T) {
	iterations := 0
	hooks := Hooks{
		Run: func(d *Device) (bool, error) {
			iterations++
			return true, nil // would loop forever without the pending-change check
		},
	}
	d := New("dev-2", property.New(), hooks)

	states := observeStates(d)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	require.NoError(t, d.ChangeDeviceState("", InitDevice))
	expectState(t, states, InitializingDevice)
	expectState(t, states, Initialized)
	require.NoError(t, d.ChangeDeviceState("", Bind))
	expectState(t, states, Binding)
	expectState(t, states, Bound)
	require.NoError(t, d.ChangeDeviceState("", Connect))
	expectState(t, states, Connecting)
	expectState(t, states, DeviceReady)
	require.NoError(t, d.ChangeDeviceState("", InitTask))
	expectState(t, states, InitializingTask)
	expectState(t, states, Ready)

	require.NoError(t, d.ChangeDeviceState("", Run))
	expectState(t, states, Running)

	time.Sleep(20 * time.Millisecond) // let the Run loop spin a few times
	require.NoError(t, d.ChangeDeviceState("", Stop))
	expectState(t, states, Ready)

	require.NoError(t, d.ChangeDeviceState("", ResetTask))
	expectState(t, states, ResettingTask)
	expectState(t, states, DeviceReady)
	require.NoError(t, d.ChangeDeviceState("", ResetDevice))
	expectState(t, states, ResettingDevice)
	expectState(t, states, Idle)
	require.NoError(t, d.ChangeDeviceState("", End))
	expectState(t, states, Exiting)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not exit")
	}
	assert.Greater(t, iterations, 0)
}

// TestChangeDeviceStateRejectsNonHolder covers §4.6's controller
// arbitration: once a controller takes control, a different caller's
// ChangeDeviceState is rejected.
func TestChangeDeviceStateRejectsNonHolder(t *testing.T) {
	d := New("dev-3", property.New(), Hooks{})
	require.NoError(t, d.TakeDeviceControl("alice"))

	err := d.ChangeDeviceState("bob", InitDevice)
	assert.ErrorIs(t, err, ErrControlTaken)

	require.NoError(t, d.ChangeDeviceState("alice", InitDevice))
}

func TestReleaseDeviceControlWakesWaiter(t *testing.T) {
	d := New("dev-4", property.New(), Hooks{})
	require.NoError(t, d.TakeDeviceControl("alice"))

	released := make(chan struct{})
	go func() {
		d.WaitForReleaseDeviceControl()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("must not release before ReleaseDeviceControl is called")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, d.ReleaseDeviceControl("alice"))
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

type fakeFactory struct{ intr bool }

func (f *fakeFactory) Transport() string { return "fake" }
func (f *fakeFactory) NewMessage() (transport.Message, error) {
	return transport.NewBaseMessage("fake", -1, 1, nil, nil, nil)
}
func (f *fakeFactory) NewMessageAligned(align int) (transport.Message, error) {
	return transport.NewBaseMessage("fake", -1, align, nil, nil, nil)
}
func (f *fakeFactory) NewMessageSize(size int) (transport.Message, error) {
	return transport.NewBaseMessage("fake", size, 1, nil, nil, nil)
}
func (f *fakeFactory) NewMessageSizeAligned(size, align int) (transport.Message, error) {
	return transport.NewBaseMessage("fake", size, align, nil, nil, nil)
}
func (f *fakeFactory) NewMessageFromBuffer(buf []byte, dealloc transport.Deallocator, hint any) (transport.Message, error) {
	return transport.NewBaseMessage("fake", -1, 1, buf, dealloc, hint)
}
func (f *fakeFactory) NewMessageFromRegion(region transport.Region, offset, size int, hint any) (transport.Message, error) {
	return transport.NewBaseMessage("fake", -1, 1, region.Bytes()[offset:offset+size], nil, hint)
}
func (f *fakeFactory) NewSocket(kind transport.SocketKind, id string) (transport.Socket, error) {
	return &fakeSocket{kind: kind}, nil
}
func (f *fakeFactory) NewPoller(targets ...transport.PollTarget) (transport.Poller, error) {
	return nil, transport.ErrNotImplemented
}
func (f *fakeFactory) NewUnmanagedRegion(opts transport.RegionOptions) (transport.Region, error) {
	return nil, transport.ErrNotImplemented
}
func (f *fakeFactory) Interrupt()        { f.intr = true }
func (f *fakeFactory) Resume()           { f.intr = false }
func (f *fakeFactory) Interrupted() bool { return f.intr }

type fakeSocket struct{ kind transport.SocketKind }

func (s *fakeSocket) Kind() transport.SocketKind   { return s.kind }
func (s *fakeSocket) Bind(address string) error    { return nil }
func (s *fakeSocket) Connect(address string) error { return nil }
func (s *fakeSocket) Send(msg transport.Message, timeout time.Duration) (int, error) {
	return msg.Size(), nil
}
func (s *fakeSocket) Receive(msg transport.Message, timeout time.Duration) (int, error) {
	return msg.Size(), nil
}
func (s *fakeSocket) SendMulti(parts []transport.Message, timeout time.Duration) (int, error) {
	return 0, nil
}
func (s *fakeSocket) ReceiveMulti(timeout time.Duration) ([]transport.Message, error) {
	return nil, nil
}
func (s *fakeSocket) TrySend(msg transport.Message) (int, error)    { return msg.Size(), nil }
func (s *fakeSocket) TryReceive(msg transport.Message) (int, error) { return msg.Size(), nil }
func (s *fakeSocket) NumPeers() int                                 { return 0 }
func (s *fakeSocket) Close() error                                  { return nil }
