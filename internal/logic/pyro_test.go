package logic

import (
	"testing"

	"github.com/sweeney/ignition-core/internal/gpio"
)

func TestPyroDecoderSequence(t *testing.T) {
	act := gpio.NewFakeActuator()
	d := NewPyroDecoder(act, nil)

	snap := SwitchSnapshot{SequencerOverride: true, MasterPyro: true}

	d.Tick(snap)
	if d.State() != PyroArmed {
		t.Fatalf("tick 1: expected ARMED, got %s", d.State())
	}
	d.Tick(snap)
	if d.State() != PyroArmed {
		t.Fatalf("tick 2: expected ARMED, got %s", d.State())
	}

	snap.Solenoid = true
	d.Tick(snap)
	if d.State() != PyroSolenoid {
		t.Fatalf("tick 3: expected SOLENOID, got %s", d.State())
	}
	if !act.SolenoidOpen() {
		t.Error("solenoid should be open")
	}

	snap.MasterPyro = false
	d.Tick(snap)
	if d.State() != PyroSafe {
		t.Fatalf("tick 4: expected SAFE directly, got %s", d.State())
	}
	if act.Armed() || act.SolenoidOpen() {
		t.Error("outputs should be safe after master withdrawn")
	}
}

func TestPyroDecoderOverrideCollapse(t *testing.T) {
	for _, start := range []SwitchSnapshot{
		{SequencerOverride: true, MasterPyro: true},
		{SequencerOverride: true, MasterPyro: true, Solenoid: true},
	} {
		act := gpio.NewFakeActuator()
		d := NewPyroDecoder(act, nil)
		d.Tick(start)
		d.Tick(start)

		d.Tick(SwitchSnapshot{MasterPyro: true, Solenoid: true})
		if d.State() != PyroSafe {
			t.Errorf("from %+v: expected SAFE after override dropped, got %s", start, d.State())
		}
		if act.Armed() || act.SolenoidOpen() {
			t.Errorf("from %+v: outputs not safe", start)
		}
	}
}

func TestPyroDecoderSolenoidOff(t *testing.T) {
	act := gpio.NewFakeActuator()
	d := NewPyroDecoder(act, nil)
	snap := SwitchSnapshot{SequencerOverride: true, MasterPyro: true, Solenoid: true}

	d.Tick(snap) // arm
	d.Tick(snap) // open
	snap.Solenoid = false
	d.Tick(snap)

	if d.State() != PyroArmed {
		t.Fatalf("expected ARMED, got %s", d.State())
	}
	if act.SolenoidOpen() {
		t.Error("solenoid should be closed")
	}
}

func TestPyroDecoderInterlockRejectsArm(t *testing.T) {
	act := gpio.NewFakeActuator()
	act.SetInterlock(false)
	d := NewPyroDecoder(act, nil)
	snap := SwitchSnapshot{SequencerOverride: true, MasterPyro: true}

	d.Tick(snap)
	if d.State() != PyroSafe {
		t.Fatalf("rejected arm must not advance, got %s", d.State())
	}

	act.SetInterlock(true)
	d.Tick(snap)
	if d.State() != PyroArmed {
		t.Fatalf("expected ARMED once interlock engaged, got %s", d.State())
	}
}

func TestPyroDecoderSafeCollapseIgnoresRejection(t *testing.T) {
	act := gpio.NewFakeActuator()
	d := NewPyroDecoder(act, nil)
	d.Tick(SwitchSnapshot{SequencerOverride: true, MasterPyro: true})

	act.SetInterlock(false)
	d.Tick(SwitchSnapshot{})

	if d.State() != PyroSafe {
		t.Fatalf("expected SAFE, got %s", d.State())
	}
	// The physical bus stays armed; divergence is accepted.
	if !act.Armed() {
		t.Error("interlocked disarm should leave the fake armed")
	}
}

func TestPyroDecoderSafeCommandsOutputs(t *testing.T) {
	act := gpio.NewFakeActuator()
	d := NewPyroDecoder(act, nil)
	snap := SwitchSnapshot{SequencerOverride: true, MasterPyro: true, Solenoid: true}
	d.Tick(snap)
	d.Tick(snap)
	if d.State() != PyroSolenoid || !act.SolenoidOpen() {
		t.Fatalf("expected SOLENOID with solenoid open, got %s", d.State())
	}

	d.Safe()
	if d.State() != PyroSafe {
		t.Errorf("expected SAFE, got %s", d.State())
	}
	if act.SolenoidOpen() || act.Armed() {
		t.Error("Safe must close the solenoid and disarm the bus")
	}
}
