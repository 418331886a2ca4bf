// Package device implements the device runtime of §4.6: the FSM-driving
// goroutine, the per-state framework actions and user hook table, channel
// and transport-factory ownership, and external control arbitration.
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/FairRootGroup/fairmq-go/pkg/channel"
	"github.com/FairRootGroup/fairmq-go/pkg/fairmqlog"
	"github.com/FairRootGroup/fairmq-go/pkg/fsm"
	"github.com/FairRootGroup/fairmq-go/pkg/property"
	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// Device owns one main/error FSM pair, a property store, the channels and
// transport factories it was configured with, and the hook table a user
// plugs its domain logic into (§4.6).
type Device struct {
	id    string
	props *property.Store
	log   zerolog.Logger

	main *fsm.Machine[State, Transition]
	errm *fsm.Machine[ErrState, Transition]
	ctl  *control

	hooks Hooks

	mu        sync.RWMutex
	channels  map[string][]*channel.Channel
	factories map[string]transport.Factory
}

// New constructs a device named id, wired to props, running hooks. Missing
// hook fields default to no-ops.
func New(id string, props *property.Store, hooks Hooks) *Device {
	d := &Device{
		id:        id,
		props:     props,
		log:       fairmqlog.Logger.With().Str("device", id).Logger(),
		main:      newMainMachine(),
		errm:      newErrMachine(),
		ctl:       newControl(),
		hooks:     hooks.withDefaults(),
		channels:  make(map[string][]*channel.Channel),
		factories: make(map[string]transport.Factory),
	}
	d.main.OnStateQueued("runtime-interrupt", func(State, State) {
		d.interruptAll()
	})
	return d
}

// ID returns the device's configured identifier.
func (d *Device) ID() string { return d.id }

// Properties exposes the device's backing property store to hooks.
func (d *Device) Properties() *property.Store { return d.props }

// RegisterTransport associates tag (e.g. "zeromq", "shmem", "ofi") with a
// factory. The device interrupts every registered factory when a transition
// is queued and resumes them when the next state is entered.
func (d *Device) RegisterTransport(tag string, f transport.Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[tag] = f
}

func (d *Device) factory(tag string) (transport.Factory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.factories[tag]
	if !ok {
		return nil, fmt.Errorf("device %q: no transport registered for tag %q", d.id, tag)
	}
	return f, nil
}

// AddChannel registers ch under name, appending it as a subchannel if name
// already has entries (§4.4's "channel-name → list of subchannels" map).
func (d *Device) AddChannel(name string, ch *channel.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[name] = append(d.channels[name], ch)
}

// Channels returns the subchannels registered under name.
func (d *Device) Channels(name string) []*channel.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*channel.Channel(nil), d.channels[name]...)
}

// ChannelNames returns the configured channel names, for callers (metrics
// collection, diagnostics) that need to enumerate channels without knowing
// their names in advance.
func (d *Device) ChannelNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}

func (d *Device) allChannels() []*channel.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var all []*channel.Channel
	for _, subs := range d.channels {
		all = append(all, subs...)
	}
	return all
}

func (d *Device) interruptAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.factories {
		f.Interrupt()
	}
}

func (d *Device) resumeAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.factories {
		f.Resume()
	}
}

// ChangeDeviceState validates controllerName against the current control
// holder (§4.6) and enqueues t on the appropriate FSM: ErrorFound always
// targets the orthogonal error machine, everything else the main machine.
func (d *Device) ChangeDeviceState(controllerName string, t Transition) error {
	if err := d.ctl.authorize(controllerName); err != nil {
		return err
	}
	if t == ErrorFound {
		return d.errm.ChangeState(t)
	}
	return d.main.ChangeState(t)
}

// CurrentState returns the main FSM's current state.
func (d *Device) CurrentState() State { return d.main.Current() }

// OnStateChange registers fn under name to run after every transition the
// main FSM actually makes (replacing any previous registration under the
// same name), letting an external controller (the static sequencer, the
// interactive console) drive transitions in step with the FSM instead of
// racing it.
func (d *Device) OnStateChange(name string, fn func(newState, prev State)) {
	d.main.OnStateChange(name, fn)
}

// TakeDeviceControl, StealDeviceControl, ReleaseDeviceControl and
// WaitForReleaseDeviceControl implement the external-control API of §4.6.
func (d *Device) TakeDeviceControl(name string) error    { return d.ctl.Take(name) }
func (d *Device) StealDeviceControl(name string)         { d.ctl.Steal(name) }
func (d *Device) ReleaseDeviceControl(name string) error { return d.ctl.Release(name) }
func (d *Device) WaitForReleaseDeviceControl()           { d.ctl.WaitForRelease() }

// Run drives the FSM to completion: it dequeues transitions, runs each
// state's framework action followed by its user hook, and returns when the
// main machine reaches Exiting or the error machine reaches Error. Callers
// typically enqueue InitDevice (and later End) from another goroutine,
// e.g. in response to CLI control input or a signal handler.
func (d *Device) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.driveFSM(gctx) })
	return g.Wait()
}

func (d *Device) driveFSM(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		mv := d.main.Next()
		d.resumeAll()
		d.log.Debug().Stringer("state", mv.New).Stringer("prev", mv.Prev).Msg("entering state")

		if err := d.enter(ctx, mv.New); err != nil {
			d.log.Error().Err(err).Stringer("state", mv.New).Msg("state hook failed")
			_ = d.errm.ChangeState(ErrorFound)
		}

		if d.errm.LastEnqueued() == Error {
			if d.errm.Current() != Error {
				d.errm.Next()
			}
			return fmt.Errorf("device %q: error state entered while in %v", d.id, mv.New)
		}
		if mv.New == Exiting {
			return nil
		}
	}
}

// pendingChange reports whether a transition away from current has already
// been enqueued while its hook is still executing — the "pending-state
// flag" a Running-loop body must check each iteration (§5).
func (d *Device) pendingChange(current State) bool {
	return d.main.LastEnqueued() != current
}

func (d *Device) enter(ctx context.Context, state State) error {
	switch state {
	case InitializingDevice:
		if err := d.setupTransportsAndChannels(); err != nil {
			return err
		}
		if err := d.hooks.Init(d); err != nil {
			return err
		}
		return d.main.ChangeState(CompleteInit)

	case Binding:
		for _, ch := range d.allChannels() {
			if ch.Method() != transport.MethodBind {
				continue
			}
			if err := ch.BindEndpoint(ch.Bind); err != nil {
				return err
			}
		}
		if err := d.hooks.Bind(d); err != nil {
			return err
		}
		return d.main.ChangeState(Auto)

	case Connecting:
		for _, ch := range d.allChannels() {
			if ch.Method() != transport.MethodConnect {
				continue
			}
			if err := ch.Connect(ch.Address()); err != nil {
				return err
			}
		}
		if err := d.hooks.Connect(d); err != nil {
			return err
		}
		return d.main.ChangeState(Auto)

	case InitializingTask:
		if err := d.hooks.InitTask(d); err != nil {
			return err
		}
		return d.main.ChangeState(Auto)

	case Running:
		return d.runTask(ctx)

	case ResettingTask:
		if err := d.hooks.ResetTask(d); err != nil {
			return err
		}
		return d.main.ChangeState(Auto)

	case ResettingDevice:
		d.closeChannels()
		if err := d.hooks.Reset(d); err != nil {
			return err
		}
		return d.main.ChangeState(Auto)

	default:
		// Initialized, Bound, DeviceReady, Ready, Exiting have no framework
		// action; they only wait for the next externally-driven transition.
		return nil
	}
}

// runTask implements the Running row of §4.6's table: PreRun once, then
// Run/ConditionalRun repeatedly until a transition away from Running has
// been queued or the hook signals it's done, then PostRun, then Stop.
func (d *Device) runTask(ctx context.Context) error {
	if err := d.hooks.PreRun(d); err != nil {
		return err
	}

	for !d.pendingChange(Running) {
		cont, err := d.hooks.Run(d)
		if err != nil {
			if perr := d.hooks.PostRun(d); perr != nil {
				d.log.Error().Err(perr).Msg("PostRun failed after Run error")
			}
			return err
		}
		if !cont {
			break
		}
		select {
		case <-ctx.Done():
			cont = false
		default:
		}
		if !cont {
			break
		}
	}

	if err := d.hooks.PostRun(d); err != nil {
		return err
	}
	if d.pendingChange(Running) {
		// A Stop (or ResetDevice via a concurrent path) is already queued;
		// don't enqueue a second, now-illegal Stop from Running.
		return nil
	}
	return d.main.ChangeState(Stop)
}

func (d *Device) closeChannels() {
	for _, ch := range d.allChannels() {
		if sock := ch.Socket(); sock != nil {
			_ = sock.Close()
		}
	}
}

// setupTransportsAndChannels is the InitializingDevice framework action: it
// validates every channel already registered with AddChannel. It does not
// read channel configuration from the property store and does not create
// transports or channels; those are supplied beforehand through
// RegisterTransport and AddChannel.
func (d *Device) setupTransportsAndChannels() error {
	for _, ch := range d.allChannels() {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", d.id, err)
		}
	}
	return nil
}
