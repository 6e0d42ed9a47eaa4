package logic

import "go.uber.org/zap"

// position is the last position the decoder commanded for a valve.
type position int8

const (
	positionUnknown position = iota
	positionClosed
	positionOpen
)

func positionOf(open bool) position {
	if open {
		return positionOpen
	}
	return positionClosed
}

// ValveDecoder translates the panel snapshot into remote valve node commands.
type ValveDecoder struct {
	state     ValveArmState
	remote    remote
	commanded [len(Valves)]position
}

// NewValveDecoder creates a decoder in the Disarmed state.
func NewValveDecoder(cmd Commander, node ValveNode, log *zap.SugaredLogger) *ValveDecoder {
	return &ValveDecoder{
		state:  ValveDisarmed,
		remote: remote{cmd: cmd, node: node, log: orNop(log)},
	}
}

// State returns the current decoder state.
func (d *ValveDecoder) State() ValveArmState {
	return d.state
}

// Reset returns the decoder to Disarmed without issuing commands.
func (d *ValveDecoder) Reset() {
	d.state = ValveDisarmed
	d.commanded = [len(Valves)]position{}
}

// Tick advances the decoder by one cycle.
func (d *ValveDecoder) Tick(snap SwitchSnapshot, fb ValveFeedback) {
	if !snap.SequencerOverride {
		if d.state != ValveDisarmed {
			d.remote.disarmAll()
		}
		d.Reset()
		return
	}

	master := snap.ValveMaster()

	switch d.state {
	case ValveDisarmed:
		if master {
			d.remote.armAll()
			d.commanded = [len(Valves)]position{}
			d.state = ValveArmed
		}

	case ValveArmed:
		if !master {
			d.remote.disarmAll()
			d.Reset()
			return
		}
		d.syncPositions(snap, fb)

	case ValveActive:
		// Reserved.

	default:
		d.Reset()
	}
}

// syncPositions sends a position command for each valve whose requested
// position changed and is not already confirmed by feedback. A command is sent
// once per change of the requested position.
func (d *ValveDecoder) syncPositions(snap SwitchSnapshot, fb ValveFeedback) {
	for _, v := range Valves {
		want := snap.ValveRequested(v)
		pos := positionOf(want)
		if fb.Matches(v, want) {
			d.commanded[v] = pos
			continue
		}
		if d.commanded[v] == pos {
			continue
		}
		d.commanded[v] = pos
		d.remote.setValve(v, want)
	}
}
