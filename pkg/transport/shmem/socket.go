package shmem

import (
	"fmt"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// Socket adapts the shmem arena to transport.Socket: only the fixed-size
// Header (§4.7) ever crosses the underlying header socket; the payload is
// resolved locally against the factory's mapped segments.
type Socket struct {
	kind    transport.SocketKind
	header  transport.Socket
	factory *Factory
}

var _ transport.Socket = (*Socket)(nil)
var _ transport.Binder = (*Socket)(nil)

func (s *Socket) Kind() transport.SocketKind { return s.kind }

func (s *Socket) Bind(address string) error {
	if b, ok := s.header.(transport.Binder); ok {
		return b.Bind(address)
	}
	return transport.ErrNotImplemented
}

func (s *Socket) Connect(address string) error {
	if b, ok := s.header.(transport.Binder); ok {
		return b.Connect(address)
	}
	return transport.ErrNotImplemented
}

func (s *Socket) Send(msg transport.Message, timeout time.Duration) (int, error) {
	sm, ok := msg.(*Message)
	if !ok {
		return 0, fmt.Errorf("%w: shmem socket requires a shmem message", transport.ErrTransportMismatch)
	}
	return s.sendHeader(sm, 1, timeout)
}

func (s *Socket) TrySend(msg transport.Message) (int, error) {
	return s.Send(msg, transport.TryOnce)
}

// SendMulti stamps every header with the total part count so ReceiveMulti
// on the other end knows how many headers to pull off the wire before it
// can return — the shmem header socket is a sequence of independent
// frames, unlike zeromq's native multipart messages, so the count has to
// travel in-band instead of arriving as one atomic frame batch.
func (s *Socket) SendMulti(parts []transport.Message, timeout time.Duration) (int, error) {
	total := 0
	for _, p := range parts {
		sm, ok := p.(*Message)
		if !ok {
			return total, fmt.Errorf("%w: shmem socket requires a shmem message", transport.ErrTransportMismatch)
		}
		n, err := s.sendHeader(sm, uint16(len(parts)), timeout)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Socket) sendHeader(sm *Message, parts uint16, timeout time.Duration) (int, error) {
	hdr := sm.Header()
	hdr.Parts = parts
	hdrBytes, err := hdr.MarshalBinary()
	if err != nil {
		return 0, err
	}
	hdrMsg, err := transport.NewBaseMessage("shmem", -1, 1, hdrBytes, nil, nil)
	if err != nil {
		return 0, err
	}
	if _, err := s.header.Send(hdrMsg, timeout); err != nil {
		return 0, err
	}
	return sm.Size(), nil
}

func (s *Socket) Receive(msg transport.Message, timeout time.Duration) (int, error) {
	dst, ok := msg.(*Message)
	if !ok {
		return 0, fmt.Errorf("%w: shmem socket requires a shmem message", transport.ErrTransportMismatch)
	}
	hdr, err := s.receiveHeader(timeout)
	if err != nil {
		return 0, err
	}
	a, err := s.factory.arenaFor(hdr.RegionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", transport.ErrTransportMismatch, err)
	}
	_ = dst.Close()
	a.refcount().Ref(hdr.RegionID, int(hdr.PayloadHandle))
	dst.arena = a
	dst.handle = int(hdr.PayloadHandle)
	dst.size = int(hdr.PayloadSize)
	dst.cap = dst.size
	dst.hint = hdr.Hint
	dst.owned = true
	return dst.size, nil
}

func (s *Socket) TryReceive(msg transport.Message) (int, error) {
	return s.Receive(msg, transport.TryOnce)
}

// ReceiveMulti reads the first header's Parts count and then keeps pulling
// headers off the wire until it has that many, so a 3-part SendMulti is
// received as 3 parts instead of 1 with stragglers left on the socket.
func (s *Socket) ReceiveMulti(timeout time.Duration) ([]transport.Message, error) {
	first, err := s.receiveHeader(timeout)
	if err != nil {
		return nil, err
	}
	count := int(first.Parts)
	if count < 1 {
		count = 1
	}
	headers := make([]Header, count)
	headers[0] = first
	for i := 1; i < count; i++ {
		headers[i], err = s.receiveHeader(timeout)
		if err != nil {
			return nil, err
		}
	}

	msgs := make([]transport.Message, count)
	for i, hdr := range headers {
		a, err := s.factory.arenaFor(hdr.RegionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrTransportMismatch, err)
		}
		m, err := FromHeader(a, hdr)
		if err != nil {
			return nil, err
		}
		msgs[i] = m
	}
	return msgs, nil
}

func (s *Socket) receiveHeader(timeout time.Duration) (Header, error) {
	hdrMsg, err := transport.NewBaseMessage("shmem", -1, 1, nil, nil, nil)
	if err != nil {
		return Header{}, err
	}
	if _, err := s.header.Receive(hdrMsg, timeout); err != nil {
		return Header{}, err
	}
	return UnmarshalHeader(hdrMsg.Data())
}

func (s *Socket) NumPeers() int { return s.header.NumPeers() }

func (s *Socket) Close() error { return s.header.Close() }
