package gpio

import "sync"

// FakeActuator is a test double that records commands and models the
// interlock. It is safe for concurrent use.
type FakeActuator struct {
	mu sync.Mutex

	// Interlock, when false, makes every command fail with ErrInterlockOpen.
	Interlock bool

	// Calls records every accepted and rejected command in order.
	Calls []string

	// Rejected counts commands refused by the interlock.
	Rejected int

	// Counts of accepted igniter pulses.
	Igniter1Fired int
	Igniter2Fired int

	armed    bool
	solenoid bool
}

// NewFakeActuator creates a FakeActuator with the interlock engaged.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{Interlock: true}
}

func (f *FakeActuator) Arm() error {
	return f.do("arm", func() { f.armed = true })
}

func (f *FakeActuator) Disarm() error {
	return f.do("disarm", func() { f.armed = false })
}

func (f *FakeActuator) OpenSolenoid() error {
	return f.do("open_solenoid", func() { f.solenoid = true })
}

func (f *FakeActuator) CloseSolenoid() error {
	return f.do("close_solenoid", func() { f.solenoid = false })
}

func (f *FakeActuator) FireIgniter1() error {
	return f.do("fire_igniter_1", func() { f.Igniter1Fired++ })
}

func (f *FakeActuator) FireIgniter2() error {
	return f.do("fire_igniter_2", func() { f.Igniter2Fired++ })
}

func (f *FakeActuator) do(name string, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, name)
	if !f.Interlock {
		f.Rejected++
		return ErrInterlockOpen
	}
	apply()
	return nil
}

// SetInterlock engages or releases the simulated interlock.
func (f *FakeActuator) SetInterlock(engaged bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Interlock = engaged
}

// State returns the simulated output state.
func (f *FakeActuator) State() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{Interlock: f.Interlock, Armed: f.armed, Solenoid: f.solenoid}, nil
}

// Armed reports whether the pyro bus is energised.
func (f *FakeActuator) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// SolenoidOpen reports whether the solenoid is open.
func (f *FakeActuator) SolenoidOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.solenoid
}

// Count returns how many times the named command was attempted.
func (f *FakeActuator) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// Reset clears recorded calls. Output state and the interlock are kept.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.Rejected = 0
	f.Igniter1Fired = 0
	f.Igniter2Fired = 0
}

// Close releases nothing.
func (f *FakeActuator) Close() error { return nil }
