// Package zeromq implements the transport.Factory contract (§4.3) on top of
// the pure-Go ZMTP implementation github.com/go-zeromq/zmq4. Messages are
// transport.BaseMessage (non-reference-counted, §4.3); sends/receives run on
// a background goroutine so NativeShortTimeout polling can honor the
// factory's interrupt flag even though zmq4's Socket has no native
// per-call deadline.
package zeromq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// Factory is the zeromq-backed transport.Factory. One Factory per device;
// every socket it creates shares its interrupt flag and base context.
type Factory struct {
	*transport.InterruptFlag

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Factory = (*Factory)(nil)

// New creates a zeromq factory. Cancel (via Close) tears down every socket
// it produced.
func New() *Factory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Factory{
		InterruptFlag: transport.NewInterruptFlag(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (f *Factory) Transport() string { return "zeromq" }

func (f *Factory) Close() { f.cancel() }

// Interrupt and Resume satisfy transport.Factory; Interrupted is promoted
// directly from the embedded InterruptFlag.
func (f *Factory) Interrupt() { f.InterruptFlag.Set() }
func (f *Factory) Resume()    { f.InterruptFlag.Clear() }

func (f *Factory) NewMessage() (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", -1, 1, nil, nil, nil)
}

func (f *Factory) NewMessageAligned(align int) (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", -1, align, nil, nil, nil)
}

func (f *Factory) NewMessageSize(size int) (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", size, 1, nil, nil, nil)
}

func (f *Factory) NewMessageSizeAligned(size, align int) (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", size, align, nil, nil, nil)
}

func (f *Factory) NewMessageFromBuffer(buf []byte, dealloc transport.Deallocator, hint any) (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", -1, 1, buf, dealloc, hint)
}

func (f *Factory) NewMessageFromRegion(region transport.Region, offset, size int, hint any) (transport.Message, error) {
	return transport.NewBaseMessage("zeromq", -1, 1, region.Bytes()[offset:offset+size], nil, hint)
}

// NewSocket maps a transport.SocketKind onto the matching zmq4 constructor
// (§3's socket-kind table).
func (f *Factory) NewSocket(kind transport.SocketKind, id string) (transport.Socket, error) {
	var zsock zmq4.Socket
	switch kind {
	case transport.Push:
		zsock = zmq4.NewPush(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Pull:
		zsock = zmq4.NewPull(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Publish:
		zsock = zmq4.NewPub(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Subscribe:
		zsock = zmq4.NewSub(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Request:
		zsock = zmq4.NewReq(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Reply:
		zsock = zmq4.NewRep(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Pair:
		zsock = zmq4.NewPair(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Dealer:
		zsock = zmq4.NewDealer(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.Router:
		zsock = zmq4.NewRouter(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.XSub:
		zsock = zmq4.NewXSub(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	case transport.XPub:
		zsock = zmq4.NewXPub(f.ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	default:
		return nil, fmt.Errorf("%w: socket kind %v", transport.ErrSocket, kind)
	}
	if kind == transport.Subscribe {
		_ = zsock.SetOption(zmq4.OptionSubscribe, "")
	}
	return &Socket{kind: kind, z: zsock, interrupt: f.InterruptFlag}, nil
}

func (f *Factory) NewPoller(targets ...transport.PollTarget) (transport.Poller, error) {
	return newPoller(targets...), nil
}

// NewUnmanagedRegion is not meaningful for a message-oriented TCP transport;
// zero-copy regions are a shared-memory concept (§4.7).
func (f *Factory) NewUnmanagedRegion(opts transport.RegionOptions) (transport.Region, error) {
	return nil, transport.ErrNotImplemented
}

// Socket adapts a zmq4.Socket to transport.Socket, honoring the
// WaitForever/TryOnce/bounded-timeout discipline of §4.3 and §5's
// interrupt-flag cooperation via NativeShortTimeout polling.
//
// zmq4 has no peek/poll primitive, so readiness (for the Poller) is tracked
// by a single background reader goroutine that keeps at most one message
// read ahead in recvCh; Receive/TryReceive drain that channel instead of
// calling z.Recv() directly, and pending() reports whether a message is
// already sitting in it.
type Socket struct {
	kind      transport.SocketKind
	z         zmq4.Socket
	interrupt *transport.InterruptFlag

	recvOnce sync.Once
	recvCh   chan recvResult
	closed   chan struct{}
}

func (s *Socket) startRecvLoop() {
	s.recvCh = make(chan recvResult, 1)
	s.closed = make(chan struct{})
	go func() {
		for {
			m, err := s.z.Recv()
			select {
			case s.recvCh <- recvResult{m, err}:
			case <-s.closed:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// pending reports whether a message is already buffered, for the poller's
// readiness check.
func (s *Socket) pending() bool {
	s.recvOnce.Do(s.startRecvLoop)
	return len(s.recvCh) > 0
}

func (s *Socket) Kind() transport.SocketKind { return s.kind }

var _ transport.Binder = (*Socket)(nil)

func (s *Socket) Bind(address string) error {
	if err := s.z.Listen(address); err != nil {
		return fmt.Errorf("%w: bind %s: %v", transport.ErrSocket, address, err)
	}
	return nil
}

func (s *Socket) Connect(address string) error {
	if err := s.z.Dial(address); err != nil {
		return fmt.Errorf("%w: connect %s: %v", transport.ErrSocket, address, err)
	}
	return nil
}

func (s *Socket) Send(msg transport.Message, timeout time.Duration) (int, error) {
	return s.sendFrames([][]byte{msg.Data()}, timeout)
}

func (s *Socket) SendMulti(parts []transport.Message, timeout time.Duration) (int, error) {
	frames := make([][]byte, len(parts))
	for i, p := range parts {
		frames[i] = p.Data()
	}
	return s.sendFrames(frames, timeout)
}

func (s *Socket) TrySend(msg transport.Message) (int, error) {
	return s.sendFrames([][]byte{msg.Data()}, transport.TryOnce)
}

func (s *Socket) sendFrames(frames [][]byte, timeout time.Duration) (int, error) {
	zmsg := zmq4.NewMsgFrom(frames...)
	errc := make(chan error, 1)
	go func() { errc <- s.z.Send(zmsg) }()

	deadline, cancelDeadline := deadlineChan(timeout)
	defer cancelDeadline()

	for {
		select {
		case err := <-errc:
			if err != nil {
				return 0, fmt.Errorf("%w: %v", transport.ErrSocket, err)
			}
			total := 0
			for _, f := range frames {
				total += len(f)
			}
			return total, nil
		case <-deadline:
			return 0, transport.ErrTimeout
		case <-time.After(transport.NativeShortTimeout):
			if s.interrupt.Interrupted() {
				return 0, transport.ErrInterrupted
			}
		}
	}
}

func (s *Socket) Receive(msg transport.Message, timeout time.Duration) (int, error) {
	frames, n, err := s.receiveFrames(timeout)
	if err != nil {
		return 0, err
	}
	if err := msg.Rebuild(transport.WithExternalBuffer(frames[0], nil, nil)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Socket) TryReceive(msg transport.Message) (int, error) {
	return s.Receive(msg, transport.TryOnce)
}

func (s *Socket) ReceiveMulti(timeout time.Duration) ([]transport.Message, error) {
	frames, _, err := s.receiveFrames(timeout)
	if err != nil {
		return nil, err
	}
	msgs := make([]transport.Message, len(frames))
	for i, fr := range frames {
		m, merr := transport.NewBaseMessage("zeromq", -1, 1, fr, nil, nil)
		if merr != nil {
			return nil, merr
		}
		msgs[i] = m
	}
	return msgs, nil
}

type recvResult struct {
	msg zmq4.Msg
	err error
}

func (s *Socket) receiveFrames(timeout time.Duration) ([][]byte, int, error) {
	s.recvOnce.Do(s.startRecvLoop)

	deadline, cancelDeadline := deadlineChan(timeout)
	defer cancelDeadline()

	for {
		select {
		case res := <-s.recvCh:
			if res.err != nil {
				return nil, 0, fmt.Errorf("%w: %v", transport.ErrSocket, res.err)
			}
			total := 0
			for _, f := range res.msg.Frames {
				total += len(f)
			}
			return res.msg.Frames, total, nil
		case <-deadline:
			return nil, 0, transport.ErrTimeout
		case <-time.After(transport.NativeShortTimeout):
			if s.interrupt.Interrupted() {
				return nil, 0, transport.ErrInterrupted
			}
		}
	}
}

// deadlineChan converts the §4.3 timeout sentinels into a channel that
// fires at the deadline; WaitForever never fires.
func deadlineChan(timeout time.Duration) (<-chan time.Time, func()) {
	switch {
	case timeout == transport.WaitForever:
		return nil, func() {}
	case timeout <= transport.TryOnce:
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c, func() {}
	default:
		timer := time.NewTimer(timeout)
		return timer.C, func() { timer.Stop() }
	}
}

// NumPeers reports the socket's current connection count. zmq4 tracks each
// live connection's endpoint itself (one per accepted or dialed peer), so
// this is read straight from the socket rather than kept as a separate
// counter that could drift out of sync with reconnects and disconnects.
func (s *Socket) NumPeers() int {
	return len(s.z.Conns())
}

func (s *Socket) Close() error {
	if s.closed != nil {
		close(s.closed)
	}
	return s.z.Close()
}
