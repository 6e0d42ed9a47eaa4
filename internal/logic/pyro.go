package logic

import "go.uber.org/zap"

// PyroDecoder translates the panel snapshot into pyro bus and propellant
// solenoid commands.
type PyroDecoder struct {
	state PyroArmState
	act   Actuator
	log   *zap.SugaredLogger
}

// NewPyroDecoder creates a decoder in the Safe state.
func NewPyroDecoder(act Actuator, log *zap.SugaredLogger) *PyroDecoder {
	return &PyroDecoder{state: PyroSafe, act: act, log: orNop(log)}
}

// State returns the current decoder state.
func (d *PyroDecoder) State() PyroArmState {
	return d.state
}

// Reset returns the decoder to Safe without issuing commands.
func (d *PyroDecoder) Reset() {
	d.state = PyroSafe
}

// Safe commands the solenoid closed and the pyro bus disarmed, then returns
// the decoder to Safe. Rejections are logged and the state still collapses.
func (d *PyroDecoder) Safe() {
	d.do("close solenoid", d.act.CloseSolenoid)
	d.do("disarm", d.act.Disarm)
	d.state = PyroSafe
}

// Tick advances the decoder by one cycle.
//
// Transitions toward Safe always complete, even when the actuator rejects the
// command. Transitions away from Safe only complete when the actuator accepts
// the command.
func (d *PyroDecoder) Tick(snap SwitchSnapshot) {
	if !snap.SequencerOverride {
		d.do("close solenoid", d.act.CloseSolenoid)
		if d.state != PyroSafe {
			d.do("disarm", d.act.Disarm)
		}
		d.state = PyroSafe
		return
	}

	master := snap.PyroMaster()

	switch d.state {
	case PyroSafe:
		if master && d.do("arm", d.act.Arm) {
			d.state = PyroArmed
		}

	case PyroArmed:
		if !master {
			d.do("disarm", d.act.Disarm)
			d.do("close solenoid", d.act.CloseSolenoid)
			d.state = PyroSafe
			return
		}
		if snap.Solenoid && d.do("open solenoid", d.act.OpenSolenoid) {
			d.state = PyroSolenoid
		}

	case PyroSolenoid:
		if !master {
			d.do("close solenoid", d.act.CloseSolenoid)
			d.do("disarm", d.act.Disarm)
			d.state = PyroSafe
			return
		}
		if !snap.Solenoid {
			d.do("close solenoid", d.act.CloseSolenoid)
			d.state = PyroArmed
		}

	default:
		d.do("close solenoid", d.act.CloseSolenoid)
		d.do("disarm", d.act.Disarm)
		d.state = PyroSafe
	}
}

func (d *PyroDecoder) do(what string, cmd func() error) bool {
	if err := cmd(); err != nil {
		d.log.Debugw("pyro command rejected", "command", what, "state", d.state, "err", err)
		return false
	}
	return true
}
