package logic

import "sync/atomic"

// Panel bit layout as delivered by the operator panel message.
const (
	BitMasterPower = 1 << iota
	BitMasterValve
	BitMasterPyro
	BitSequencerOverride
	BitValveNitrousA
	BitValveNitrousB
	BitValveNitrogen
	BitValveDischarge
	BitSolenoid

	switchMask = 1<<9 - 1
)

// SwitchSnapshot is the latched operator panel state.
type SwitchSnapshot struct {
	MasterPower       bool
	MasterValve       bool
	MasterPyro        bool
	SequencerOverride bool
	ValveNitrousA     bool
	ValveNitrousB     bool
	ValveNitrogen     bool
	ValveDischarge    bool
	Solenoid          bool
}

// DecodeSwitches unpacks panel bits into a snapshot. Bits above bit 8 are ignored.
func DecodeSwitches(bits uint16) SwitchSnapshot {
	return SwitchSnapshot{
		MasterPower:       bits&BitMasterPower != 0,
		MasterValve:       bits&BitMasterValve != 0,
		MasterPyro:        bits&BitMasterPyro != 0,
		SequencerOverride: bits&BitSequencerOverride != 0,
		ValveNitrousA:     bits&BitValveNitrousA != 0,
		ValveNitrousB:     bits&BitValveNitrousB != 0,
		ValveNitrogen:     bits&BitValveNitrogen != 0,
		ValveDischarge:    bits&BitValveDischarge != 0,
		Solenoid:          bits&BitSolenoid != 0,
	}
}

// Bits packs the snapshot back into the panel bit layout.
func (s SwitchSnapshot) Bits() uint16 {
	var bits uint16
	set := func(on bool, bit uint16) {
		if on {
			bits |= bit
		}
	}
	set(s.MasterPower, BitMasterPower)
	set(s.MasterValve, BitMasterValve)
	set(s.MasterPyro, BitMasterPyro)
	set(s.SequencerOverride, BitSequencerOverride)
	set(s.ValveNitrousA, BitValveNitrousA)
	set(s.ValveNitrousB, BitValveNitrousB)
	set(s.ValveNitrogen, BitValveNitrogen)
	set(s.ValveDischarge, BitValveDischarge)
	set(s.Solenoid, BitSolenoid)
	return bits
}

// PyroMaster is the pyro master switch gated by the override.
func (s SwitchSnapshot) PyroMaster() bool {
	return s.MasterPyro && s.SequencerOverride
}

// ValveMaster is the valve master switch gated by the override.
func (s SwitchSnapshot) ValveMaster() bool {
	return s.MasterValve && s.SequencerOverride
}

// BothArmed reports whether both pyro and valve masters are enabled through the override.
func (s SwitchSnapshot) BothArmed() bool {
	return s.PyroMaster() && s.ValveMaster()
}

// ValveRequested returns the operator-requested position of v (true = open).
func (s SwitchSnapshot) ValveRequested(v Valve) bool {
	switch v {
	case ValveVent:
		return s.ValveDischarge
	case ValveNitrogen:
		return s.ValveNitrogen
	case ValveNitrousA:
		return s.ValveNitrousA
	case ValveNitrousB:
		return s.ValveNitrousB
	}
	return false
}

// SwitchPanel holds the most recently received panel state. Writes replace the
// whole record in one atomic store, so it may be written from a receive
// goroutine while the control loop reads it.
type SwitchPanel struct {
	bits atomic.Uint32
}

// SetSwitchStates replaces the stored panel state.
func (p *SwitchPanel) SetSwitchStates(bits uint16) {
	p.bits.Store(uint32(bits) & switchMask)
}

// Snapshot returns the current panel state.
func (p *SwitchPanel) Snapshot() SwitchSnapshot {
	return DecodeSwitches(uint16(p.bits.Load()))
}
