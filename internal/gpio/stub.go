//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(chip string, pins Pins) (*RealActuator, error) {
	return nil, errUnsupported
}

func (a *RealActuator) Arm() error           { return errUnsupported }
func (a *RealActuator) Disarm() error        { return errUnsupported }
func (a *RealActuator) OpenSolenoid() error  { return errUnsupported }
func (a *RealActuator) CloseSolenoid() error { return errUnsupported }
func (a *RealActuator) FireIgniter1() error  { return errUnsupported }
func (a *RealActuator) FireIgniter2() error  { return errUnsupported }

// State is not implemented on non-Linux platforms.
func (a *RealActuator) State() (State, error) { return State{}, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error { return nil }
