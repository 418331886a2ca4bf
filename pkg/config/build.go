package config

import (
	"fmt"
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/channel"
	"github.com/FairRootGroup/fairmq-go/pkg/transport"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
)

var socketKinds = map[string]transport.SocketKind{
	"push":   transport.Push,
	"pull":   transport.Pull,
	"pub":    transport.Publish,
	"sub":    transport.Subscribe,
	"req":    transport.Request,
	"rep":    transport.Reply,
	"pair":   transport.Pair,
	"dealer": transport.Dealer,
	"router": transport.Router,
	"xsub":   transport.XSub,
	"xpub":   transport.XPub,
}

func parseSocketKind(s string) (transport.SocketKind, error) {
	k, ok := socketKinds[s]
	if !ok {
		return 0, fmt.Errorf("%w: unrecognized channel type %q", ErrParse, s)
	}
	return k, nil
}

func parseMethod(s string) (transport.Method, error) {
	switch s {
	case "bind":
		return transport.MethodBind, nil
	case "connect":
		return transport.MethodConnect, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized channel method %q", ErrParse, s)
	}
}

// FactoryLookup resolves a transport tag ("zeromq", "shmem", "ofi") to the
// factory a device has registered for it.
type FactoryLookup func(tag string) (transport.Factory, error)

// BuildChannels turns opts into validated channel.Channel values, one per
// subchannel of each named channel, grouped by channel name in the order
// given. defaultTransport is used for any ChannelOptions that doesn't set
// its own Transport (the device's --transport flag).
func BuildChannels(opts []ChannelOptions, defaultTransport string, lookup FactoryLookup) (map[string][]*channel.Channel, error) {
	out := make(map[string][]*channel.Channel)
	counts := make(map[string]int)

	for _, o := range opts {
		tag := o.Transport
		if tag == "" {
			tag = defaultTransport
		}
		f, err := lookup(tag)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", o.Name, err)
		}

		numSockets := o.NumSockets
		if numSockets <= 0 {
			numSockets = 1
		}

		for i := 0; i < numSockets; i++ {
			idx := counts[o.Name]
			counts[o.Name]++

			ch := channel.New(o.Name, idx, f)
			if err := applyChannelOptions(ch, o); err != nil {
				return nil, err
			}
			if err := ch.Validate(); err != nil {
				return nil, err
			}
			out[o.Name] = append(out[o.Name], ch)
		}
	}
	return out, nil
}

func applyChannelOptions(ch *channel.Channel, o ChannelOptions) error {
	kind, err := parseSocketKind(o.Type)
	if err != nil {
		return fmt.Errorf("channel %q: %w", o.Name, err)
	}
	method, err := parseMethod(o.Method)
	if err != nil {
		return fmt.Errorf("channel %q: %w", o.Name, err)
	}

	ch.SetKind(kind).
		SetMethod(method).
		SetAddress(o.Address).
		SetTransport(o.Transport)

	if o.SndKernelSize > 0 {
		ch.SetSndKernelSize(o.SndKernelSize)
	}
	if o.RcvKernelSize > 0 {
		ch.SetRcvKernelSize(o.RcvKernelSize)
	}
	if o.SndTimeoutMs > 0 {
		ch.SetSndTimeout(time.Duration(o.SndTimeoutMs) * time.Millisecond)
	}
	if o.RcvTimeoutMs > 0 {
		ch.SetRcvTimeout(time.Duration(o.RcvTimeoutMs) * time.Millisecond)
	}
	if o.LingerMs > 0 {
		ch.SetLinger(time.Duration(o.LingerMs) * time.Millisecond)
	}
	if o.RateLoggingMs > 0 {
		ch.SetRateLoggingInterval(time.Duration(o.RateLoggingMs) * time.Millisecond)
	}
	if o.PortRangeMin > 0 || o.PortRangeMax > 0 {
		ch.SetPortRange(o.PortRangeMin, o.PortRangeMax)
	}
	ch.SetAutoBind(o.AutoBind)
	return nil
}

// ShmemConfig derives a shmem.Factory Config from the --shm-* flags of
// §6, seeding the session from --session and --shmid.
func (f *Flags) ShmemConfig() shmem.Config {
	session := shmem.NewSession(f.Session)
	if f.ShmID != 0 {
		session.OverrideID(uint32(f.ShmID))
	}

	maxAttempts := f.BadAllocMaxAttempts
	if !f.ShmThrowBadAlloc {
		maxAttempts = -1
	}

	return shmem.Config{
		Session:        session,
		DeviceID:       f.ID,
		SegmentSize:    f.ShmSegmentSize,
		Allocator:      f.ShmAllocation,
		AltSegmentID:   f.ShmSegmentID,
		ZeroOnCreation: f.ShmZeroSegmentOnCreation,
		LockOnCreation: f.ShmMlockSegmentOnCreation,
		BadAlloc: shmem.RetryPolicy{
			MaxAttempts: maxAttempts,
			Interval:    f.BadAllocAttemptInterval,
		},
	}
}
