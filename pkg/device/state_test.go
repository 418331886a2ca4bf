package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allTransitions = []Transition{
	Auto, InitDevice, CompleteInit, Bind, Connect, InitTask, Run, Stop,
	ResetTask, ResetDevice, End, ErrorFound,
}

// advanceTo walks the real device FSM from Idle to target along a single
// legal path (§4.5), draining the queue after each step.
func advanceTo(t *testing.T, target State) *machineUnderTest {
	m := newMainMachine()
	step := func(in Transition) {
		t.Helper()
		require.NoError(t, m.ChangeState(in))
		m.Next()
	}

	if target == Idle {
		return &machineUnderTest{m}
	}
	step(InitDevice)
	if target == InitializingDevice {
		return &machineUnderTest{m}
	}
	step(CompleteInit)
	if target == Initialized {
		return &machineUnderTest{m}
	}
	step(Bind)
	if target == Binding {
		return &machineUnderTest{m}
	}
	step(Auto)
	if target == Bound {
		return &machineUnderTest{m}
	}
	step(Connect)
	if target == Connecting {
		return &machineUnderTest{m}
	}
	step(Auto)
	if target == DeviceReady {
		return &machineUnderTest{m}
	}
	switch target {
	case ResettingDevice:
		step(ResetDevice)
		return &machineUnderTest{m}
	}
	step(InitTask)
	if target == InitializingTask {
		return &machineUnderTest{m}
	}
	step(Auto)
	if target == Ready {
		return &machineUnderTest{m}
	}
	switch target {
	case ResettingTask:
		step(ResetTask)
		return &machineUnderTest{m}
	case Running:
		step(Run)
		return &machineUnderTest{m}
	}
	t.Fatalf("advanceTo: no path to %v", target)
	return nil
}

type machineUnderTest struct {
	m interface {
		ChangeState(Transition) error
		LastEnqueued() State
	}
}

// TestMainTableTotality covers P1 against the concrete device transition
// table: from every reachable state, every input absent from §4.5's table
// is illegal and every input present succeeds.
func TestMainTableTotality(t *testing.T) {
	for state, row := range mainTable {
		state := state
		for _, in := range allTransitions {
			want, legal := row[in]
			mt := advanceTo(t, state)
			err := mt.m.ChangeState(in)
			if legal {
				require.NoError(t, err, "state=%v input=%v", state, in)
				assert.Equal(t, want, mt.m.LastEnqueued())
			} else {
				require.Error(t, err, "state=%v input=%v should be illegal", state, in)
			}
		}
	}
}

func TestExitingIsTerminal(t *testing.T) {
	mt := advanceTo(t, ResettingDevice)
	require.NoError(t, mt.m.ChangeState(Auto))
	assert.Equal(t, Idle, mt.m.LastEnqueued())

	mt2 := advanceTo(t, Idle)
	require.NoError(t, mt2.m.ChangeState(End))
	assert.Equal(t, Exiting, mt2.m.LastEnqueued())
	for _, in := range allTransitions {
		require.Error(t, mt2.m.ChangeState(in), "Exiting must accept no further input, got success for %v", in)
	}
}

func TestErrorFoundIsOrthogonal(t *testing.T) {
	main := newMainMachine()
	errM := newErrMachine()

	require.NoError(t, main.ChangeState(InitDevice))
	require.NoError(t, errM.ChangeState(ErrorFound))

	assert.Equal(t, Idle, main.Current(), "main machine hasn't consumed its queue yet, unaffected by error machine")
	assert.Equal(t, InitializingDevice, main.LastEnqueued())
	assert.Equal(t, Ok, errM.Current())

	mv := errM.Next()
	assert.Equal(t, Error, mv.New)
}

func TestRunningStopReturnsToReady(t *testing.T) {
	mt := advanceTo(t, Running)
	require.NoError(t, mt.m.ChangeState(Stop))
	assert.Equal(t, Ready, mt.m.LastEnqueued())
}
