// Package logic contains the decision core of the ignition controller: the
// manual override decoders, the heartbeat monitor, the ignition sequencer and
// the system supervisor.
// This package performs NO I/O. Actuators and the remote command channel are
// reached through the Actuator and Commander interfaces, and time is always
// injected via time.Time parameters.
package logic

import "time"

// SystemMode is the single externally visible system state.
type SystemMode string

const (
	ModeInit      SystemMode = "INIT"
	ModeReady     SystemMode = "READY"
	ModeSequencer SystemMode = "SEQUENCER"
	ModePostFire  SystemMode = "POST_FIRE"
	ModeManual    SystemMode = "MANUAL"
	ModeError     SystemMode = "ERROR"
	ModeAbort     SystemMode = "ABORT"
)

// PyroArmState is the state of the manual pyro decoder.
type PyroArmState string

const (
	PyroSafe     PyroArmState = "SAFE"
	PyroArmed    PyroArmState = "ARMED"
	PyroSolenoid PyroArmState = "SOLENOID"
)

// ValveArmState is the state of the manual valve decoder.
type ValveArmState string

const (
	ValveDisarmed ValveArmState = "DISARMED"
	ValveArmed    ValveArmState = "ARMED"
	// ValveActive is reserved. No transition reaches it.
	ValveActive ValveArmState = "ACTIVE"
)

// SequencerState is the state of the ignition sequencer.
type SequencerState string

const (
	SeqUninitialised SequencerState = "UNINITIALISED"
	SeqReady         SequencerState = "READY"
	SeqCountdown     SequencerState = "COUNTDOWN"
	SeqFire          SequencerState = "FIRE"
	SeqFailedStart   SequencerState = "FAILED_START"
)

// EventType identifies a telemetry event emitted by the supervisor.
type EventType string

const (
	EventMode          EventType = "MODE"
	EventPyro          EventType = "PYRO"
	EventValve         EventType = "VALVE"
	EventSequencer     EventType = "SEQUENCER"
	EventMilestone     EventType = "MILESTONE"
	EventRejected      EventType = "REJECTED"
	EventHeartbeatLost EventType = "HEARTBEAT_LOST"
)

// Event is a state change to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Mode      SystemMode
	From      string
	To        string
	Detail    string
	CycleID   string
}

// Inputs is the consistent view of the world a component sees within one tick.
type Inputs struct {
	Switches SwitchSnapshot
	Feedback ValveFeedback
}

// ModeRequester accepts system mode requests from components that do not own
// the system mode.
type ModeRequester interface {
	RequestMode(mode SystemMode)
}

// Liveness reports whether every required remote node is alive.
type Liveness interface {
	AllRequiredActive() bool
}
