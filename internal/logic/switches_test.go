package logic

import "testing"

func TestDecodeSwitchesBitOrder(t *testing.T) {
	tests := []struct {
		bit  uint16
		want SwitchSnapshot
	}{
		{BitMasterPower, SwitchSnapshot{MasterPower: true}},
		{BitMasterValve, SwitchSnapshot{MasterValve: true}},
		{BitMasterPyro, SwitchSnapshot{MasterPyro: true}},
		{BitSequencerOverride, SwitchSnapshot{SequencerOverride: true}},
		{BitValveNitrousA, SwitchSnapshot{ValveNitrousA: true}},
		{BitValveNitrousB, SwitchSnapshot{ValveNitrousB: true}},
		{BitValveNitrogen, SwitchSnapshot{ValveNitrogen: true}},
		{BitValveDischarge, SwitchSnapshot{ValveDischarge: true}},
		{BitSolenoid, SwitchSnapshot{Solenoid: true}},
	}
	for i, tt := range tests {
		if uint16(1)<<i != tt.bit {
			t.Errorf("bit %d has value %#x", i, tt.bit)
		}
		if got := DecodeSwitches(tt.bit); got != tt.want {
			t.Errorf("DecodeSwitches(%#x) = %+v, want %+v", tt.bit, got, tt.want)
		}
		if got := tt.want.Bits(); got != tt.bit {
			t.Errorf("Bits() = %#x, want %#x", got, tt.bit)
		}
	}
}

func TestMastersGatedByOverride(t *testing.T) {
	s := SwitchSnapshot{MasterValve: true, MasterPyro: true}
	if s.PyroMaster() || s.ValveMaster() || s.BothArmed() {
		t.Error("masters must be off without the override")
	}

	s.SequencerOverride = true
	if !s.PyroMaster() || !s.ValveMaster() || !s.BothArmed() {
		t.Error("masters must be on with the override")
	}

	s.MasterValve = false
	if s.BothArmed() {
		t.Error("both armed requires the valve master")
	}
}

func TestValveRequestedDischargeIsVent(t *testing.T) {
	s := SwitchSnapshot{ValveDischarge: true}
	if !s.ValveRequested(ValveVent) {
		t.Error("discharge switch should request the vent open")
	}
	for _, v := range []Valve{ValveNitrogen, ValveNitrousA, ValveNitrousB} {
		if s.ValveRequested(v) {
			t.Errorf("%s should not be requested", v)
		}
	}
}

func TestSwitchPanelIgnoresHighBits(t *testing.T) {
	var p SwitchPanel
	p.SetSwitchStates(0xFE00 | BitMasterPyro)

	got := p.Snapshot()
	if got != (SwitchSnapshot{MasterPyro: true}) {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}
