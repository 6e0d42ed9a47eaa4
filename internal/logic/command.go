package logic

import (
	"fmt"

	"go.uber.org/zap"
)

// Actuator is the local actuator board. Every command is gated by the
// hardware interlock; a non-nil error means the command was rejected and the
// output did not change.
type Actuator interface {
	Arm() error
	Disarm() error
	OpenSolenoid() error
	CloseSolenoid() error
	FireIgniter1() error
	FireIgniter2() error
}

// CommandKind is the kind byte of a remote command.
type CommandKind uint8

const (
	CommandArm   CommandKind = 0x01
	CommandValve CommandKind = 0x02
)

// Arm payloads: a bitmask of servos 1-4 to arm.
const (
	ArmAll  byte = 0xFF
	ArmNone byte = 0xF0
)

// RemoteCommand is one logical command for a remote node.
type RemoteCommand struct {
	NodeType byte
	NodeAddr byte
	Kind     CommandKind
	Payload  byte
}

func (c RemoteCommand) String() string {
	return fmt.Sprintf("node=%d/%d kind=0x%02X payload=0x%02X", c.NodeType, c.NodeAddr, uint8(c.Kind), c.Payload)
}

// ValvePositionPayload encodes a valve position request as (index << 6) | state.
func ValvePositionPayload(v Valve, open bool) byte {
	p := byte(v) << 6
	if open {
		p |= 1
	}
	return p
}

// Commander sends remote commands. Sends are fire-and-forget: an error means
// the command was not accepted for transmission and it will not be re-sent.
type Commander interface {
	Send(cmd RemoteCommand) error
}

// ValveNode addresses the remote valve actuator node.
type ValveNode struct {
	Type byte
	Addr byte
}

// remote is the shared remote-actuation path used by the valve decoder,
// the sequencer and the supervisor.
type remote struct {
	cmd  Commander
	node ValveNode
	log  *zap.SugaredLogger
}

func (r remote) send(kind CommandKind, payload byte) bool {
	c := RemoteCommand{NodeType: r.node.Type, NodeAddr: r.node.Addr, Kind: kind, Payload: payload}
	if err := r.cmd.Send(c); err != nil {
		r.log.Warnw("remote command not sent", "command", c.String(), "err", err)
		return false
	}
	return true
}

func (r remote) armAll() bool {
	return r.send(CommandArm, ArmAll)
}

func (r remote) disarmAll() bool {
	return r.send(CommandArm, ArmNone)
}

func (r remote) setValve(v Valve, open bool) bool {
	return r.send(CommandValve, ValvePositionPayload(v, open))
}

// setValveGated sends a position command only when feedback does not already
// show the valve in the requested position.
func (r remote) setValveGated(fb ValveFeedback, v Valve, open bool) {
	if fb.Matches(v, open) {
		return
	}
	r.setValve(v, open)
}

func orNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
