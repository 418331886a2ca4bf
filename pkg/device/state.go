package device

import "github.com/FairRootGroup/fairmq-go/pkg/fsm"

// State is the main device lifecycle state (§3, §4.5).
type State int

const (
	Idle State = iota
	InitializingDevice
	Initialized
	Binding
	Bound
	Connecting
	DeviceReady
	InitializingTask
	Ready
	Running
	ResettingTask
	ResettingDevice
	Exiting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InitializingDevice:
		return "InitializingDevice"
	case Initialized:
		return "Initialized"
	case Binding:
		return "Binding"
	case Bound:
		return "Bound"
	case Connecting:
		return "Connecting"
	case DeviceReady:
		return "DeviceReady"
	case InitializingTask:
		return "InitializingTask"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case ResettingTask:
		return "ResettingTask"
	case ResettingDevice:
		return "ResettingDevice"
	case Exiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// Transition is an input symbol accepted by the main FSM (§3).
type Transition int

const (
	Auto Transition = iota
	InitDevice
	CompleteInit
	Bind
	Connect
	InitTask
	Run
	Stop
	ResetTask
	ResetDevice
	End
	ErrorFound
)

func (t Transition) String() string {
	switch t {
	case Auto:
		return "Auto"
	case InitDevice:
		return "InitDevice"
	case CompleteInit:
		return "CompleteInit"
	case Bind:
		return "Bind"
	case Connect:
		return "Connect"
	case InitTask:
		return "InitTask"
	case Run:
		return "Run"
	case Stop:
		return "Stop"
	case ResetTask:
		return "ResetTask"
	case ResetDevice:
		return "ResetDevice"
	case End:
		return "End"
	case ErrorFound:
		return "ErrorFound"
	default:
		return "Unknown"
	}
}

// ErrState is the orthogonal error sub-machine's state (§3, §4.5).
type ErrState int

const (
	Ok ErrState = iota
	Error
)

func (e ErrState) String() string {
	if e == Error {
		return "Error"
	}
	return "Ok"
}

// mainTable is the transition table of §4.5. Every (state, input) pair not
// listed here raises fsm.ErrIllegalTransition (P1).
var mainTable = fsm.Table[State, Transition]{
	Idle: {
		InitDevice: InitializingDevice,
		End:        Exiting,
	},
	InitializingDevice: {
		CompleteInit: Initialized,
	},
	Initialized: {
		Bind: Binding,
	},
	Binding: {
		Auto: Bound,
	},
	Bound: {
		Connect: Connecting,
	},
	Connecting: {
		Auto: DeviceReady,
	},
	DeviceReady: {
		InitTask:    InitializingTask,
		ResetDevice: ResettingDevice,
	},
	InitializingTask: {
		Auto: Ready,
	},
	Ready: {
		Run:       Running,
		ResetTask: ResettingTask,
	},
	Running: {
		Stop: Ready,
	},
	ResettingTask: {
		Auto: DeviceReady,
	},
	ResettingDevice: {
		Auto: Idle,
	},
	// Exiting is terminal: no outbound transitions.
}

// errTable is the orthogonal error sub-machine's single transition. It is
// always computed against the error machine, never the main machine — see
// Device.ChangeDeviceState.
var errTable = fsm.Table[ErrState, Transition]{
	Ok: {
		ErrorFound: Error,
	},
	// Error is terminal.
}

// newMainMachine and newErrMachine construct the two independent FSM
// instances a device owns. Both instantiate the same generic fsm.Machine,
// per §4.5's orthogonality requirement.
func newMainMachine() *fsm.Machine[State, Transition] {
	return fsm.New(mainTable, Idle)
}

func newErrMachine() *fsm.Machine[ErrState, Transition] {
	return fsm.New(errTable, Ok)
}
