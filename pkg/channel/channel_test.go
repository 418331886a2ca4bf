package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

func TestValidateRejectsIncompleteChannel(t *testing.T) {
	c := New("data", 0, nil)
	err := c.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)

	c.SetKind(transport.Push)
	err = c.Validate()
	assert.ErrorIs(t, err, ErrConfiguration, "method still missing")

	c.SetMethod(transport.MethodConnect)
	err = c.Validate()
	assert.ErrorIs(t, err, ErrConfiguration, "address still missing")

	c.SetAddress("tcp://localhost:5555")
	require.NoError(t, c.Validate())
	assert.True(t, c.IsValidated())
}

func TestMutatorsClearValidation(t *testing.T) {
	c := New("data", 0, nil)
	c.SetKind(transport.Push).SetMethod(transport.MethodConnect).SetAddress("tcp://localhost:5555")
	require.NoError(t, c.Validate())

	c.SetSndQueueLen(500)
	assert.False(t, c.IsValidated(), "mutating a validated channel must invalidate it")
}

func TestValidateRejectsEmptyAutoBindRange(t *testing.T) {
	c := New("data", 0, nil)
	c.SetKind(transport.Pull).SetMethod(transport.MethodBind).SetAddress("tcp://*:5555")
	c.SetAutoBind(true).SetPortRange(6000, 5000)
	err := c.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBindEndpointAutoBindScansPortRange(t *testing.T) {
	c := New("data", 0, nil)
	c.SetKind(transport.Pull).SetMethod(transport.MethodBind).
		SetAddress("tcp://*:5555").
		SetAutoBind(true).SetPortRange(6000, 6010)

	var tried []string
	bindFn := func(addr string) error {
		tried = append(tried, addr)
		if len(tried) < 3 {
			return assert.AnError
		}
		return nil
	}

	err := c.BindEndpoint(bindFn)
	require.NoError(t, err)
	assert.Equal(t, tried[len(tried)-1], c.Address(), "address updated to the port that succeeded")
	assert.GreaterOrEqual(t, len(tried), 3)
}

func TestBindEndpointSkipsAutoBindWhenDisabled(t *testing.T) {
	c := New("data", 0, nil)
	c.SetKind(transport.Pull).SetMethod(transport.MethodBind).SetAddress("tcp://*:5555")

	err := c.BindEndpoint(func(string) error { return assert.AnError })
	assert.Error(t, err)
	assert.Equal(t, "tcp://*:5555", c.Address(), "address unchanged when auto-bind is off")
}

func TestRateValueAccumulatesOverSends(t *testing.T) {
	c := New("data", 0, &fakeFactory{})
	c.SetKind(transport.Push).SetMethod(transport.MethodConnect).SetAddress("tcp://localhost:5555")
	require.NoError(t, c.Validate())
	require.NoError(t, c.ensureSocket())

	msg, err := transport.NewBaseMessage("zeromq", 128, 1, nil, nil, nil)
	require.NoError(t, err)

	_, err = c.Send(msg, useChannelDefault)
	require.NoError(t, err)
	assert.Greater(t, c.RateValue(), 0.0)
}

// fakeFactory and fakeSocket exist only to give Channel.ensureSocket/Send
// something to drive in TestRateValueAccumulatesOverSends.
type fakeFactory struct{}

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
func (f *fakeFactory) Interrupt()        {}
func (f *fakeFactory) Resume()           {}
func (f *fakeFactory) Interrupted() bool { return false }

type fakeSocket struct{ kind transport.SocketKind }

func (s *fakeSocket) Kind() transport.SocketKind { return s.kind }
func (s *fakeSocket) Send(msg transport.Message, timeout time.Duration) (int, error) {
	return msg.Size(), nil
}
func (s *fakeSocket) Receive(msg transport.Message, timeout time.Duration) (int, error) {
	return msg.Size(), nil
}
func (s *fakeSocket) SendMulti(parts []transport.Message, timeout time.Duration) (int, error) {
	total := 0
	for _, p := range parts {
		total += p.Size()
	}
	return total, nil
}
func (s *fakeSocket) ReceiveMulti(timeout time.Duration) ([]transport.Message, error) { return nil, nil }
func (s *fakeSocket) TrySend(msg transport.Message) (int, error)                      { return msg.Size(), nil }
func (s *fakeSocket) TryReceive(msg transport.Message) (int, error)                   { return msg.Size(), nil }
func (s *fakeSocket) NumPeers() int                                                   { return 1 }
func (s *fakeSocket) Close() error                                                    { return nil }
