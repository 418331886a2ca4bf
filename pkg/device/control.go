package device

import (
	"fmt"
	"sync"
)

// ErrControlTaken is raised by TakeDeviceControl when another controller
// already holds the device, and by ChangeDeviceState/ReleaseDeviceControl
// when the caller isn't the holder (§4.6).
var ErrControlTaken = fmt.Errorf("device: control already taken")

// control arbitrates exclusive external ownership of a device's state
// transitions. One controller at a time may call ChangeDeviceState;
// WaitForReleaseDeviceControl blocks callers until that controller steps
// aside, mirroring the teacher's mutex-guarded state idiom
// (pkg/manager/manager.go's leadership handoff) adapted to a condition
// variable.
type control struct {
	mu   sync.Mutex
	cond *sync.Cond

	holder string
	taken  bool
}

func newControl() *control {
	c := &control{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Take acquires exclusive control under name, failing if another
// controller already holds it.
func (c *control) Take(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken && c.holder != name {
		return fmt.Errorf("%w: held by %q", ErrControlTaken, c.holder)
	}
	c.taken = true
	c.holder = name
	return nil
}

// Steal forcibly overrides any current holder. It does not wake
// WaitForReleaseDeviceControl waiters — per §4.6 a steal is an emergency
// override, not a release.
func (c *control) Steal(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taken = true
	c.holder = name
}

// Release relinquishes control held under name and wakes every waiter.
func (c *control) Release(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken && c.holder != name {
		return fmt.Errorf("%w: held by %q", ErrControlTaken, c.holder)
	}
	c.taken = false
	c.holder = ""
	c.cond.Broadcast()
	return nil
}

// WaitForRelease blocks until the device has no holder.
func (c *control) WaitForRelease() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.taken {
		c.cond.Wait()
	}
}

// authorize reports whether name is allowed to drive a state transition:
// either nobody holds control, or name is the holder.
func (c *control) authorize(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken && c.holder != name {
		return fmt.Errorf("%w: held by %q", ErrControlTaken, c.holder)
	}
	return nil
}
