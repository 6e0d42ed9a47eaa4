//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealActuator drives the actuator board through the Linux GPIO character device.
type RealActuator struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	arm   *gpiocdev.Line
	sol   *gpiocdev.Line
	ign1  *gpiocdev.Line
	ign2  *gpiocdev.Line
	lock  *gpiocdev.Line
	pulse time.Duration
}

// NewRealActuator requests the actuator lines on chip. Outputs start low.
func NewRealActuator(chip string, pins Pins) (*RealActuator, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	a := &RealActuator{chip: c, pulse: IgniterPulse}

	// The interlock switch pulls the line high when engaged.
	if a.lock, err = c.RequestLine(pins.Interlock, gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		a.Close()
		return nil, fmt.Errorf("request interlock pin %d: %w", pins.Interlock, err)
	}
	outputs := []struct {
		name string
		pin  int
		line **gpiocdev.Line
	}{
		{"arm", pins.Arm, &a.arm},
		{"solenoid", pins.Solenoid, &a.sol},
		{"igniter1", pins.Igniter1, &a.ign1},
		{"igniter2", pins.Igniter2, &a.ign2},
	}
	for _, o := range outputs {
		l, err := c.RequestLine(o.pin, gpiocdev.AsOutput(0))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", o.name, o.pin, err)
		}
		*o.line = l
	}
	return a, nil
}

// Arm energises the pyro bus.
func (a *RealActuator) Arm() error { return a.set("arm", a.arm, 1) }

// Disarm de-energises the pyro bus.
func (a *RealActuator) Disarm() error { return a.set("disarm", a.arm, 0) }

// OpenSolenoid opens the propellant solenoid.
func (a *RealActuator) OpenSolenoid() error { return a.set("open solenoid", a.sol, 1) }

// CloseSolenoid closes the propellant solenoid.
func (a *RealActuator) CloseSolenoid() error { return a.set("close solenoid", a.sol, 0) }

// FireIgniter1 drives the primary igniter for one pulse.
func (a *RealActuator) FireIgniter1() error { return a.fire("igniter1", a.ign1) }

// FireIgniter2 drives the secondary igniter for one pulse.
func (a *RealActuator) FireIgniter2() error { return a.fire("igniter2", a.ign2) }

func (a *RealActuator) set(what string, l *gpiocdev.Line, v int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.interlocked(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (a *RealActuator) fire(what string, l *gpiocdev.Line) error {
	if err := a.set("fire "+what, l, 1); err != nil {
		return err
	}
	time.AfterFunc(a.pulse, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		l.SetValue(0)
	})
	return nil
}

// interlocked must be called with mu held.
func (a *RealActuator) interlocked() error {
	v, err := a.lock.Value()
	if err != nil {
		return fmt.Errorf("read interlock pin: %w", err)
	}
	if v == 0 {
		return ErrInterlockOpen
	}
	return nil
}

// State reads back the interlock input and every output line.
func (a *RealActuator) State() (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var st State
	reads := []struct {
		name string
		line *gpiocdev.Line
		dst  *bool
	}{
		{"interlock", a.lock, &st.Interlock},
		{"arm", a.arm, &st.Armed},
		{"solenoid", a.sol, &st.Solenoid},
		{"igniter1", a.ign1, &st.Igniter1},
		{"igniter2", a.ign2, &st.Igniter2},
	}
	for _, r := range reads {
		v, err := r.line.Value()
		if err != nil {
			return State{}, fmt.Errorf("read %s pin: %w", r.name, err)
		}
		*r.dst = v != 0
	}
	return st, nil
}

// Close drives every output low and releases GPIO resources.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so nothing is left energised across a restart.
func (a *RealActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error

	for _, l := range []*gpiocdev.Line{a.sol, a.ign1, a.ign2, a.arm} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line %d low: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close interlock pin: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
