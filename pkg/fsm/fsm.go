// Package fsm implements the cooperative finite-state machine shared by a
// device's main lifecycle and its orthogonal error sub-machine: queued
// transitions computed against the last *enqueued* state (not the current
// state), illegal transitions rejected without mutating the queue, and two
// independent subscriber hooks — one firing at enqueue time, one firing
// when the FSM goroutine actually enters the new state.
package fsm

import (
	"fmt"
	"sync"

	infinity "github.com/Code-Hex/go-infinity-channel"
)

// ErrIllegalTransition is returned when an input has no entry in the
// transition table for the machine's last-enqueued state.
var ErrIllegalTransition = fmt.Errorf("fsm: illegal transition")

// Table maps a source state to the states reachable from it, keyed by
// input symbol.
type Table[S comparable, I comparable] map[S]map[I]S

// Move is one queued transition: the state being entered and the state it
// was entered from.
type Move[S any] struct {
	New  S
	Prev S
}

// Machine is a generic cooperative FSM. The same type backs both the main
// device lifecycle (large S/I enums) and the orthogonal Ok/Error
// sub-machine (two states, one input), so both share one implementation.
type Machine[S comparable, I comparable] struct {
	mu      sync.Mutex
	table   Table[S, I]
	initial S

	current      S
	lastEnqueued S

	queue *infinity.Channel[Move[S]]

	queuedSubs sync.Map // name -> func(new, prev S)
	changeSubs sync.Map // name -> func(new, prev S)
}

// New creates a machine starting in initial, governed by table.
func New[S comparable, I comparable](table Table[S, I], initial S) *Machine[S, I] {
	return &Machine[S, I]{
		table:        table,
		initial:      initial,
		current:      initial,
		lastEnqueued: initial,
		queue:        infinity.NewChannel[Move[S]](),
	}
}

// Current returns the state the FSM goroutine has actually entered.
func (m *Machine[S, I]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastEnqueued returns the state most recently computed by ChangeState,
// which may be ahead of Current if the FSM goroutine hasn't caught up.
func (m *Machine[S, I]) LastEnqueued() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEnqueued
}

// ChangeState computes the next state from the last *enqueued* state (P2),
// appends it to the unbounded transition queue, and fires on_state_queued
// subscribers synchronously before returning. An input undefined for the
// last-enqueued state returns ErrIllegalTransition and leaves the queue
// untouched (P1).
func (m *Machine[S, I]) ChangeState(input I) error {
	m.mu.Lock()
	from := m.lastEnqueued
	next, ok := m.table[from][input]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: no transition for input %v from state %v", ErrIllegalTransition, input, from)
	}
	m.lastEnqueued = next
	m.mu.Unlock()

	m.queue.In() <- Move[S]{New: next, Prev: from}
	m.fire(&m.queuedSubs, next, from)
	return nil
}

// OnStateQueued registers fn, replacing any previous registration under
// name, to fire synchronously with the ChangeState caller at enqueue time.
func (m *Machine[S, I]) OnStateQueued(name string, fn func(newState, prev S)) {
	m.queuedSubs.Store(name, fn)
}

// OnStateChange registers fn, replacing any previous registration under
// name, to fire on the FSM goroutine when it actually enters the new
// state.
func (m *Machine[S, I]) OnStateChange(name string, fn func(newState, prev S)) {
	m.changeSubs.Store(name, fn)
}

func (m *Machine[S, I]) fire(subs *sync.Map, newState, prev S) {
	subs.Range(func(_, v any) bool {
		v.(func(newState, prev S))(newState, prev)
		return true
	})
}

// Next blocks until a transition is available, enters it (updates Current,
// fires on_state_change subscribers), and returns it. Callers — normally
// the device runtime's single FSM goroutine — drive the machine by calling
// Next in a loop.
func (m *Machine[S, I]) Next() Move[S] {
	mv := <-m.queue.Out()
	m.mu.Lock()
	m.current = mv.New
	m.mu.Unlock()
	m.fire(&m.changeSubs, mv.New, mv.Prev)
	return mv
}

// Reset clears the pending-transition queue and returns the machine to its
// initial state. Per §4.5 this is legal only after the machine has reached
// its terminal state; callers are responsible for enforcing that
// precondition before calling Reset.
func (m *Machine[S, I]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	draining := true
	for draining {
		select {
		case <-m.queue.Out():
		default:
			draining = false
		}
	}
	m.current = m.initial
	m.lastEnqueued = m.initial
}
