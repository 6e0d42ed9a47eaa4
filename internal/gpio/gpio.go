// Package gpio drives the local actuator board: the pyro bus arm line, the
// propellant solenoid and the two igniter channels.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// ErrInterlockOpen is returned when a command is attempted while the hardware
// interlock is not engaged. The output is left unchanged.
var ErrInterlockOpen = errors.New("gpio: interlock not engaged")

// Pins holds the BCM line offsets of the actuator board.
type Pins struct {
	Arm       int
	Solenoid  int
	Igniter1  int
	Igniter2  int
	Interlock int
}

// Default pin definitions (BCM numbering)
var DefaultPins = Pins{
	Arm:       17,
	Solenoid:  27,
	Igniter1:  22,
	Igniter2:  23,
	Interlock: 24,
}

// IgniterPulse is how long an igniter channel is driven when fired.
const IgniterPulse = 250 * time.Millisecond

// State is a snapshot of the actuator outputs and the interlock input.
type State struct {
	Interlock bool `json:"interlock"`
	Armed     bool `json:"armed"`
	Solenoid  bool `json:"solenoid"`
	Igniter1  bool `json:"igniter1"`
	Igniter2  bool `json:"igniter2"`
}
