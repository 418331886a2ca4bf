package device

// Hooks is the user-overridable half of §4.6's per-state table; every
// field defaults to a no-op when left nil. Run/ConditionalRun return
// (continue, error): continue == false or a non-nil error ends the Running
// loop and proceeds to PostRun.
type Hooks struct {
	Init      func(d *Device) error
	Bind      func(d *Device) error
	Connect   func(d *Device) error
	InitTask  func(d *Device) error
	PreRun    func(d *Device) error
	Run       func(d *Device) (bool, error)
	PostRun   func(d *Device) error
	ResetTask func(d *Device) error
	Reset     func(d *Device) error
}

func (h Hooks) withDefaults() Hooks {
	if h.Init == nil {
		h.Init = func(*Device) error { return nil }
	}
	if h.Bind == nil {
		h.Bind = func(*Device) error { return nil }
	}
	if h.Connect == nil {
		h.Connect = func(*Device) error { return nil }
	}
	if h.InitTask == nil {
		h.InitTask = func(*Device) error { return nil }
	}
	if h.PreRun == nil {
		h.PreRun = func(*Device) error { return nil }
	}
	if h.Run == nil {
		h.Run = func(*Device) (bool, error) { return false, nil }
	}
	if h.PostRun == nil {
		h.PostRun = func(*Device) error { return nil }
	}
	if h.ResetTask == nil {
		h.ResetTask = func(*Device) error { return nil }
	}
	if h.Reset == nil {
		h.Reset = func(*Device) error { return nil }
	}
	return h
}
