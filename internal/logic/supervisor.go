package logic

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SupervisorDeps are the collaborators of a Supervisor.
type SupervisorDeps struct {
	Actuator  Actuator
	Commander Commander
	Node      ValveNode
	Liveness  Liveness
	Sequencer SequencerConfig
	Log       *zap.SugaredLogger

	// NewCycleID is passed through to the sequencer.
	NewCycleID func() string
}

// Status is a point-in-time view of the decision core.
type Status struct {
	Mode        SystemMode
	Pyro        PyroArmState
	Valve       ValveArmState
	Sequencer   SequencerState
	CycleID     string
	BurnTime    time.Duration
	Window      time.Duration
	ChecksGood  bool
	Timing      SequencerTiming
	Switches    SwitchSnapshot
	Feedback    ValveFeedback
	FirePending bool
}

// Supervisor arbitrates between manual control, the sequencer, error and
// abort. Tick must be called from a single goroutine. The Request* and Set*
// methods only store atomic flags and may be called from any goroutine.
type Supervisor struct {
	mode      SystemMode
	published atomic.Value

	pyro     *PyroDecoder
	valve    *ValveDecoder
	seq      *Sequencer
	panel    SwitchPanel
	feedback FeedbackStore

	act    Actuator
	remote remote
	log    *zap.SugaredLogger

	abortReq    atomic.Bool
	errorReq    atomic.Bool
	postFireReq atomic.Bool
	sequenceReq atomic.Bool
	resetReq    atomic.Bool
	fireReq     atomic.Bool
	burnReq     atomic.Int64
}

// NewSupervisor creates a Supervisor in Init mode together with its decoders
// and sequencer.
func NewSupervisor(deps SupervisorDeps) (*Supervisor, error) {
	log := orNop(deps.Log)
	s := &Supervisor{
		mode:   ModeInit,
		act:    deps.Actuator,
		remote: remote{cmd: deps.Commander, node: deps.Node, log: log},
		log:    log,
	}
	s.published.Store(ModeInit)

	seq, err := NewSequencer(deps.Sequencer, SequencerDeps{
		Actuator:   deps.Actuator,
		Commander:  deps.Commander,
		Node:       deps.Node,
		Liveness:   deps.Liveness,
		Modes:      s,
		Log:        log.Named("sequencer"),
		NewCycleID: deps.NewCycleID,
	})
	if err != nil {
		return nil, err
	}
	s.seq = seq
	s.pyro = NewPyroDecoder(deps.Actuator, log.Named("pyro"))
	s.valve = NewValveDecoder(deps.Commander, deps.Node, log.Named("valve"))
	return s, nil
}

// Mode returns the current system mode. Safe to call from any goroutine.
func (s *Supervisor) Mode() SystemMode {
	return s.published.Load().(SystemMode)
}

// Pyro returns the manual pyro decoder.
func (s *Supervisor) Pyro() *PyroDecoder { return s.pyro }

// Valve returns the manual valve decoder.
func (s *Supervisor) Valve() *ValveDecoder { return s.valve }

// Sequencer returns the ignition sequencer.
func (s *Supervisor) Sequencer() *Sequencer { return s.seq }

// SetSwitchStates stores a new panel state.
func (s *Supervisor) SetSwitchStates(bits uint16) { s.panel.SetSwitchStates(bits) }

// SetValveFeedback stores new remote valve feedback.
func (s *Supervisor) SetValveFeedback(fb ValveFeedback) { s.feedback.Update(fb) }

// RequestAbort asks for Abort on the next tick.
func (s *Supervisor) RequestAbort() { s.abortReq.Store(true) }

// RequestError asks for Error on the next tick.
func (s *Supervisor) RequestError() { s.errorReq.Store(true) }

// RequestSequence asks to hand control to the sequencer on the next tick.
func (s *Supervisor) RequestSequence() { s.sequenceReq.Store(true) }

// RequestReset asks to return to Ready on the next tick.
func (s *Supervisor) RequestReset() { s.resetReq.Store(true) }

// RequestFire forwards a fire request to the sequencer on the next tick.
func (s *Supervisor) RequestFire() { s.fireReq.Store(true) }

// RequestBurnTime asks to set the sequencer burn time on the next tick.
func (s *Supervisor) RequestBurnTime(d time.Duration) {
	if d > 0 {
		s.burnReq.Store(int64(d))
	}
}

// RequestMode implements ModeRequester for the sequencer.
func (s *Supervisor) RequestMode(mode SystemMode) {
	switch mode {
	case ModeAbort:
		s.abortReq.Store(true)
	case ModeError:
		s.errorReq.Store(true)
	case ModePostFire:
		s.postFireReq.Store(true)
	}
}

// Status returns the current state of the core. Call from the Tick goroutine.
func (s *Supervisor) Status() Status {
	return Status{
		Mode:        s.mode,
		Pyro:        s.pyro.State(),
		Valve:       s.valve.State(),
		Sequencer:   s.seq.State(),
		CycleID:     s.seq.CycleID(),
		BurnTime:    s.seq.BurnTime(),
		Window:      s.seq.Window(),
		ChecksGood:  s.seq.ChecksGood(),
		Timing:      s.seq.Timing(),
		Switches:    s.panel.Snapshot(),
		Feedback:    s.feedback.Load(),
		FirePending: s.seq.FireRequested(),
	}
}

// Tick runs one scheduling cycle and returns the resulting events.
func (s *Supervisor) Tick(now time.Time) []Event {
	before := s.Status()
	var events []Event

	s.consumeSafety()
	s.consumeOperator()

	in := Inputs{Switches: s.panel.Snapshot(), Feedback: s.feedback.Load()}

	switch s.mode {
	case ModeInit:
		s.setMode(ModeReady)

	case ModeReady, ModeManual:
		s.pyro.Tick(in.Switches)
		s.valve.Tick(in.Switches, in.Feedback)
		if in.Switches.SequencerOverride {
			s.setMode(ModeManual)
		} else {
			s.setMode(ModeReady)
		}

	case ModeSequencer:
		milestone, err := s.seq.Tick(now, in)
		if milestone != "" {
			events = append(events, Event{Type: EventMilestone, To: milestone})
		}
		if err != nil {
			events = append(events, Event{Type: EventRejected, Detail: err.Error()})
		}

	case ModePostFire:
		s.valve.Tick(in.Switches, in.Feedback)

	case ModeError, ModeAbort:
	}

	s.consumeSafety()
	if s.postFireReq.Swap(false) && s.mode == ModeSequencer {
		s.pyro.Reset()
		s.valve.Reset()
		s.setMode(ModePostFire)
	}

	return s.stamp(now, append(s.diff(before), events...))
}

// consumeSafety applies pending abort and error requests.
func (s *Supervisor) consumeSafety() {
	if s.abortReq.Swap(false) {
		s.errorReq.Store(false)
		s.postFireReq.Store(false)
		if s.mode != ModeAbort {
			s.log.Errorw("abort", "from", s.mode)
			s.enterSafe("abort")
			s.setMode(ModeAbort)
		}
	}
	if s.errorReq.Swap(false) {
		if s.mode != ModeAbort && s.mode != ModeError {
			s.postFireReq.Store(false)
			s.log.Errorw("error", "from", s.mode, "sequencer", s.seq.State())
			if s.seq.State() == SeqFailedStart {
				// The sequencer already safed its outputs in this cycle.
				s.pyro.Reset()
				s.valve.Reset()
			} else {
				s.enterSafe("error")
			}
			s.setMode(ModeError)
		}
	}
}

// consumeOperator applies pending reset, burn time, sequence and fire requests.
func (s *Supervisor) consumeOperator() {
	if s.resetReq.Swap(false) {
		switch s.mode {
		case ModeError, ModeAbort, ModePostFire:
			s.enterSafe("reset")
			s.seq.Reset()
			s.setMode(ModeReady)
			s.log.Infow("reset")
		}
	}

	if d := s.burnReq.Swap(0); d > 0 {
		if err := s.seq.SetBurnTime(time.Duration(d)); err != nil {
			s.log.Warnw("burn time not changed", "burn_time", time.Duration(d), "err", err)
		}
	}

	if s.sequenceReq.Swap(false) {
		switch s.mode {
		case ModeReady, ModeManual:
			// Manual control may have left the solenoid open.
			s.pyro.Safe()
			s.valve.Reset()
			if err := s.seq.SetReady(); err != nil {
				s.log.Warnw("sequencer not ready", "err", err)
				break
			}
			s.setMode(ModeSequencer)
		default:
			s.log.Warnw("sequence request ignored", "mode", s.mode)
		}
	}

	if s.fireReq.Swap(false) {
		if s.mode == ModeSequencer {
			s.seq.RequestFire()
		} else {
			s.log.Warnw("fire request ignored", "mode", s.mode)
		}
	}
}

// enterSafe forces the safe output configuration and resets every owner of
// output state.
func (s *Supervisor) enterSafe(reason string) {
	if !s.seq.Halt(reason) {
		if err := s.act.CloseSolenoid(); err != nil {
			s.log.Warnw("close solenoid rejected", "reason", reason, "err", err)
		}
		if err := s.act.Disarm(); err != nil {
			s.log.Warnw("pyro disarm rejected", "reason", reason, "err", err)
		}
		s.remote.disarmAll()
	}
	s.pyro.Reset()
	s.valve.Reset()
}

func (s *Supervisor) setMode(m SystemMode) {
	if s.mode == m {
		return
	}
	s.log.Infow("mode", "from", s.mode, "to", m)
	s.mode = m
	s.published.Store(m)
}

func (s *Supervisor) diff(before Status) []Event {
	var events []Event
	if before.Mode != s.mode {
		events = append(events, Event{Type: EventMode, From: string(before.Mode), To: string(s.mode)})
	}
	if p := s.pyro.State(); before.Pyro != p {
		events = append(events, Event{Type: EventPyro, From: string(before.Pyro), To: string(p)})
	}
	if v := s.valve.State(); before.Valve != v {
		events = append(events, Event{Type: EventValve, From: string(before.Valve), To: string(v)})
	}
	if q := s.seq.State(); before.Sequencer != q {
		events = append(events, Event{Type: EventSequencer, From: string(before.Sequencer), To: string(q)})
	}
	return events
}

func (s *Supervisor) stamp(now time.Time, events []Event) []Event {
	for i := range events {
		events[i].Timestamp = now
		events[i].Mode = s.mode
		events[i].CycleID = s.seq.CycleID()
	}
	return events
}
