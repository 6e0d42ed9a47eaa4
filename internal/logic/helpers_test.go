package logic

import (
	"errors"
	"time"
)

var testNode = ValveNode{Type: 2, Addr: 1}

type recordingCommander struct {
	sent []RemoteCommand
	fail bool
}

func (r *recordingCommander) Send(c RemoteCommand) error {
	if r.fail {
		return errors.New("queue full")
	}
	r.sent = append(r.sent, c)
	return nil
}

func (r *recordingCommander) count(kind CommandKind, payload byte) int {
	n := 0
	for _, c := range r.sent {
		if c.Kind == kind && c.Payload == payload {
			n++
		}
	}
	return n
}

func (r *recordingCommander) reset() { r.sent = nil }

type recordingModes struct {
	requested []SystemMode
}

func (m *recordingModes) RequestMode(mode SystemMode) {
	m.requested = append(m.requested, mode)
}

func (m *recordingModes) has(mode SystemMode) bool {
	for _, r := range m.requested {
		if r == mode {
			return true
		}
	}
	return false
}

type staticLiveness bool

func (l staticLiveness) AllRequiredActive() bool { return bool(l) }

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func armedSnapshot() SwitchSnapshot {
	return SwitchSnapshot{MasterPower: true, MasterValve: true, MasterPyro: true, SequencerOverride: true}
}

func initialisedFeedback(vent, nitrogen, nitrousA, nitrousB bool) ValveFeedback {
	return ValveFeedback{Initialised: true, Open: [len(Valves)]bool{vent, nitrogen, nitrousA, nitrousB}}
}
