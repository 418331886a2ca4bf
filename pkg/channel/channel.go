// Package channel implements the named, validated socket binding of §3/§4.4:
// a channel is mutable until Validate seals it, at which point Bind/Connect
// drive the underlying transport socket.
package channel

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/VividCortex/ewma"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// ErrConfiguration is raised by Validate for a missing or unrecognized
// field, or a buffer/timeout/linger value out of range (§7).
var ErrConfiguration = fmt.Errorf("channel: configuration error")

// Channel is the binding record of §3. Every field mutator marks the
// channel dirty and unvalidated; Validate must run again before Bind or
// Connect.
type Channel struct {
	name     string
	subIndex int

	kind         transport.SocketKind
	kindSet      bool
	method       transport.Method
	methodSet    bool
	address      string
	transportTag string

	sndQueueLen, rcvQueueLen     int
	sndKernelSize, rcvKernelSize int
	sndTimeout, rcvTimeout       time.Duration
	linger                       time.Duration
	rateLoggingInterval          time.Duration
	autoBind                     bool
	portMin, portMax             int
	numSockets                   int

	dirty     bool
	validated bool

	factory transport.Factory
	socket  transport.Socket

	rate      ewma.MovingAverage
	bytesSent uint64
}

// New creates an unvalidated channel named name (optionally "name[i]" for a
// subchannel), bound to factory for socket construction.
func New(name string, subIndex int, factory transport.Factory) *Channel {
	return &Channel{
		name:                name,
		subIndex:            subIndex,
		factory:             factory,
		sndQueueLen:         1000,
		rcvQueueLen:         1000,
		sndTimeout:          100 * time.Millisecond,
		rcvTimeout:          100 * time.Millisecond,
		linger:              500 * time.Millisecond,
		rateLoggingInterval: 0,
		portMin:             22000,
		portMax:             23000,
		numSockets:          1,
		dirty:               true,
		rate:                ewma.NewMovingAverage(),
	}
}

// Name implements transport.PollTarget.
func (c *Channel) Name() string { return c.name }

// SubIndex implements transport.PollTarget.
func (c *Channel) SubIndex() int { return c.subIndex }

// Socket implements transport.PollTarget.
func (c *Channel) Socket() transport.Socket { return c.socket }

func (c *Channel) markDirty() {
	c.dirty = true
	c.validated = false
}

func (c *Channel) SetKind(k transport.SocketKind) *Channel {
	c.kind, c.kindSet = k, true
	c.markDirty()
	return c
}

func (c *Channel) SetMethod(m transport.Method) *Channel {
	c.method, c.methodSet = m, true
	c.markDirty()
	return c
}

func (c *Channel) SetAddress(addr string) *Channel {
	c.address = addr
	c.markDirty()
	return c
}

func (c *Channel) SetTransport(tag string) *Channel {
	c.transportTag = tag
	c.markDirty()
	return c
}

func (c *Channel) SetSndQueueLen(n int) *Channel { c.sndQueueLen = n; c.markDirty(); return c }
func (c *Channel) SetRcvQueueLen(n int) *Channel { c.rcvQueueLen = n; c.markDirty(); return c }
func (c *Channel) SetSndKernelSize(n int) *Channel {
	c.sndKernelSize = n
	c.markDirty()
	return c
}
func (c *Channel) SetRcvKernelSize(n int) *Channel {
	c.rcvKernelSize = n
	c.markDirty()
	return c
}
func (c *Channel) SetSndTimeout(d time.Duration) *Channel { c.sndTimeout = d; c.markDirty(); return c }
func (c *Channel) SetRcvTimeout(d time.Duration) *Channel { c.rcvTimeout = d; c.markDirty(); return c }
func (c *Channel) SetLinger(d time.Duration) *Channel     { c.linger = d; c.markDirty(); return c }
func (c *Channel) SetRateLoggingInterval(d time.Duration) *Channel {
	c.rateLoggingInterval = d
	c.markDirty()
	return c
}
func (c *Channel) SetAutoBind(enabled bool) *Channel { c.autoBind = enabled; c.markDirty(); return c }
func (c *Channel) SetPortRange(min, max int) *Channel {
	c.portMin, c.portMax = min, max
	c.markDirty()
	return c
}
func (c *Channel) SetNumSockets(n int) *Channel { c.numSockets = n; c.markDirty(); return c }

func (c *Channel) Address() string            { return c.address }
func (c *Channel) Kind() transport.SocketKind  { return c.kind }
func (c *Channel) Method() transport.Method    { return c.method }
func (c *Channel) IsValidated() bool           { return c.validated }

// Validate enforces that type, method, and address are set to recognized
// values and that buffer/timeout/linger values lie in sensible ranges,
// then seals the channel (Bind/Connect may only run after this).
func (c *Channel) Validate() error {
	if !c.kindSet {
		return fmt.Errorf("%w: channel %q has no socket kind", ErrConfiguration, c.name)
	}
	if !c.methodSet {
		return fmt.Errorf("%w: channel %q has no bind/connect method", ErrConfiguration, c.name)
	}
	if c.address == "" {
		return fmt.Errorf("%w: channel %q has no address", ErrConfiguration, c.name)
	}
	if c.sndQueueLen < 0 || c.rcvQueueLen < 0 {
		return fmt.Errorf("%w: channel %q has a negative queue length", ErrConfiguration, c.name)
	}
	if c.linger < 0 {
		return fmt.Errorf("%w: channel %q has a negative linger", ErrConfiguration, c.name)
	}
	if c.sndKernelSize < 0 || c.rcvKernelSize < 0 {
		return fmt.Errorf("%w: channel %q has a negative kernel buffer size", ErrConfiguration, c.name)
	}
	if c.sndTimeout < transport.WaitForever || c.rcvTimeout < transport.WaitForever {
		return fmt.Errorf("%w: channel %q has a timeout below WaitForever", ErrConfiguration, c.name)
	}
	if c.autoBind && c.portMin > c.portMax {
		return fmt.Errorf("%w: channel %q has an empty auto-bind port range [%d,%d]", ErrConfiguration, c.name, c.portMin, c.portMax)
	}
	c.validated = true
	c.dirty = false
	return nil
}

func (c *Channel) ensureSocket() error {
	if c.socket != nil {
		return nil
	}
	sock, err := c.factory.NewSocket(c.kind, fmt.Sprintf("%s[%d]", c.name, c.subIndex))
	if err != nil {
		return fmt.Errorf("channel %q: %w", c.name, err)
	}
	c.socket = sock
	return nil
}

// Bind validates (if necessary) and binds the channel's socket to address,
// overwriting the configured address on success.
func (c *Channel) Bind(address string) error {
	if !c.validated {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if err := c.ensureSocket(); err != nil {
		return err
	}
	if binder, ok := c.socket.(transport.Binder); ok {
		if err := binder.Bind(address); err != nil {
			return err
		}
	}
	c.address = address
	return nil
}

// Connect validates (if necessary) and connects the channel's socket to
// address.
func (c *Channel) Connect(address string) error {
	if !c.validated {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if err := c.ensureSocket(); err != nil {
		return err
	}
	if binder, ok := c.socket.(transport.Binder); ok {
		if err := binder.Connect(address); err != nil {
			return err
		}
	}
	c.address = address
	return nil
}

// BindEndpoint implements §4.4's auto-bind behavior: if endpoint's
// configured address fails to bind and auto_bind is set, ports in
// [port_min, port_max] are tried in randomized order; the first success is
// written back into the channel's address.
func (c *Channel) BindEndpoint(bindFn func(address string) error) error {
	if err := bindFn(c.address); err == nil {
		return nil
	} else if !c.autoBind {
		return err
	}

	ports := make([]int, 0, c.portMax-c.portMin+1)
	for p := c.portMin; p <= c.portMax; p++ {
		ports = append(ports, p)
	}
	rand.Shuffle(len(ports), func(i, j int) { ports[i], ports[j] = ports[j], ports[i] })

	host, _, scheme := splitAddress(c.address)
	var lastErr error
	for _, p := range ports {
		candidate := fmt.Sprintf("%s://%s:%d", scheme, host, p)
		if err := bindFn(candidate); err == nil {
			c.address = candidate
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("channel %q: auto-bind exhausted [%d,%d]: %w", c.name, c.portMin, c.portMax, lastErr)
}

func splitAddress(addr string) (host, port, scheme string) {
	scheme = "tcp"
	rest := addr
	if idx := indexOf(addr, "://"); idx >= 0 {
		scheme = addr[:idx]
		rest = addr[idx+3:]
	}
	if idx := lastIndexOf(rest, ":"); idx >= 0 {
		return rest[:idx], rest[idx+1:], scheme
	}
	return rest, "", scheme
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func lastIndexOf(s, sub string) int {
	last := -1
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			last = i
		}
	}
	return last
}

// Send delegates to the underlying socket, substituting the channel's
// configured send timeout when useChannelDefault is passed as the timeout.
func (c *Channel) Send(msg transport.Message, timeout time.Duration) (int, error) {
	if timeout == useChannelDefault {
		timeout = c.sndTimeout
	}
	n, err := c.socket.Send(msg, timeout)
	if err == nil {
		c.recordRate(n)
	}
	return n, err
}

// Receive delegates to the underlying socket, substituting the channel's
// configured receive timeout when useChannelDefault is passed as the timeout.
func (c *Channel) Receive(msg transport.Message, timeout time.Duration) (int, error) {
	if timeout == useChannelDefault {
		timeout = c.rcvTimeout
	}
	n, err := c.socket.Receive(msg, timeout)
	if err == nil {
		c.recordRate(n)
	}
	return n, err
}

// useChannelDefault is the sentinel timeout value meaning "use the
// channel's configured default", distinct from transport.WaitForever (-1
// already means block-forever at the socket layer, so the channel uses a
// separate, larger-magnitude sentinel).
const useChannelDefault time.Duration = time.Duration(^uint64(0) >> 1) // max duration

func (c *Channel) recordRate(n int) {
	c.bytesSent += uint64(n)
	c.rate.Add(float64(n))
}

// RateValue returns the EWMA-smoothed instantaneous throughput in
// bytes/sample, consumed by the channel's periodic rate logger
// (rate-logging interval, §3).
func (c *Channel) RateValue() float64 { return c.rate.Value() }
