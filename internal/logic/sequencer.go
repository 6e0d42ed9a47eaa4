package logic

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Countdown timing.
const (
	DefaultWindow   = 10 * time.Second
	MinWindow       = 10 * time.Second
	DefaultBurnTime = 6 * time.Second

	fireInOneDelay = time.Second

	// countdownGrace is how long past the window a countdown may run before
	// it is failed.
	countdownGrace = fireInOneDelay
)

// Countdown milestones, most advanced first.
const (
	MilestoneIgnition    = "ignition"
	MilestoneFireInOne   = "fire-in-one"
	MilestoneIgniter     = "igniter"
	MilestoneCheckpoint  = "checkpoint"
	MilestoneValvePreset = "valve-preset"
)

// Fire-phase milestones, in time order.
const (
	MilestoneShutdown           = "shutdown"
	MilestonePurgeVentOpen      = "purge-vent-open"
	MilestonePurgeNitrogenOpen  = "purge-nitrogen-open"
	MilestonePurgeVentClose     = "purge-vent-close"
	MilestonePurgeNitrogenClose = "purge-nitrogen-close"
	MilestoneFinalVentOpen      = "final-vent-open"
	MilestoneSafe               = "safe"
)

// ErrSequenceActive is returned when a sequencer setting is changed during
// countdown or fire.
var ErrSequenceActive = errors.New("ignition sequence in progress")

var (
	errBothArmed     = errors.New("pyro and valve masters not both armed")
	errHeartbeat     = errors.New("required node heartbeat lost")
	errValvePosition = errors.New("valve feedback does not match preset")
	errOverrun       = errors.New("countdown overran its window")
)

// FireTable holds fire-phase offsets, measured from fire start plus burn time.
type FireTable struct {
	Shutdown           time.Duration
	PurgeVentOpen      time.Duration
	PurgeNitrogenOpen  time.Duration
	PurgeVentClose     time.Duration
	PurgeNitrogenClose time.Duration
	FinalVentOpen      time.Duration
	Safe               time.Duration
}

// DefaultFireTable returns the standard post-burn purge and safing schedule.
func DefaultFireTable() FireTable {
	return FireTable{
		Shutdown:           0,
		PurgeVentOpen:      1 * time.Second,
		PurgeNitrogenOpen:  2 * time.Second,
		PurgeVentClose:     5 * time.Second,
		PurgeNitrogenClose: 7 * time.Second,
		FinalVentOpen:      9 * time.Second,
		Safe:               15 * time.Second,
	}
}

// Validate checks that offsets are non-negative and strictly increasing.
func (ft FireTable) Validate() error {
	steps := []struct {
		name   string
		offset time.Duration
	}{
		{MilestoneShutdown, ft.Shutdown},
		{MilestonePurgeVentOpen, ft.PurgeVentOpen},
		{MilestonePurgeNitrogenOpen, ft.PurgeNitrogenOpen},
		{MilestonePurgeVentClose, ft.PurgeVentClose},
		{MilestonePurgeNitrogenClose, ft.PurgeNitrogenClose},
		{MilestoneFinalVentOpen, ft.FinalVentOpen},
		{MilestoneSafe, ft.Safe},
	}
	if ft.Shutdown < 0 {
		return fmt.Errorf("fire table: %s offset %v is negative", MilestoneShutdown, ft.Shutdown)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].offset <= steps[i-1].offset {
			return fmt.Errorf("fire table: %s offset %v must be after %s offset %v",
				steps[i].name, steps[i].offset, steps[i-1].name, steps[i-1].offset)
		}
	}
	return nil
}

// SequencerConfig configures a Sequencer. Zero values select defaults.
type SequencerConfig struct {
	// Window is the total countdown duration.
	Window time.Duration
	// BurnTime, when positive, acts as an initial SetBurnTime.
	BurnTime  time.Duration
	FireTable FireTable

	// CheckHeartbeats fails the countdown when any required node is lost.
	CheckHeartbeats bool
	// CheckValvePositions fails the countdown when, after the checkpoint,
	// feedback does not show the preset valve positions.
	CheckValvePositions bool
}

// SequencerDeps are the collaborators of a Sequencer.
type SequencerDeps struct {
	Actuator  Actuator
	Commander Commander
	Node      ValveNode
	Liveness  Liveness
	Modes     ModeRequester
	Log       *zap.SugaredLogger

	// NewCycleID names each ignition cycle. Defaults to uuid.NewString.
	NewCycleID func() string
}

// SequencerTiming exposes the countdown anchors. Zero times are unset.
type SequencerTiming struct {
	SequenceStart time.Time
	FireInOne     time.Time
	FireStart     time.Time
}

type nopModes struct{}

func (nopModes) RequestMode(SystemMode) {}

// Sequencer runs the autonomous countdown, ignition and burn timeline.
type Sequencer struct {
	cfg      SequencerConfig
	state    SequencerState
	act      Actuator
	remote   remote
	liveness Liveness
	modes    ModeRequester
	log      *zap.SugaredLogger
	newID    func() string

	burnTime      time.Duration
	burnTimeSet   bool
	fireRequested atomic.Bool
	checksGood    bool
	cycleID       string

	in        Inputs
	countdown *Timeline
	fire      *Timeline
}

// NewSequencer creates a Sequencer in the Uninitialised state.
func NewSequencer(cfg SequencerConfig, deps SequencerDeps) (*Sequencer, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Window < MinWindow {
		return nil, fmt.Errorf("countdown window %v shorter than %v", cfg.Window, MinWindow)
	}
	if cfg.BurnTime < 0 {
		return nil, fmt.Errorf("burn time %v is negative", cfg.BurnTime)
	}
	if cfg.FireTable == (FireTable{}) {
		cfg.FireTable = DefaultFireTable()
	}
	if err := cfg.FireTable.Validate(); err != nil {
		return nil, err
	}
	if cfg.CheckHeartbeats && deps.Liveness == nil {
		return nil, errors.New("heartbeat checks enabled without a liveness source")
	}
	if deps.Modes == nil {
		deps.Modes = nopModes{}
	}
	if deps.NewCycleID == nil {
		deps.NewCycleID = uuid.NewString
	}

	log := orNop(deps.Log)
	s := &Sequencer{
		cfg:         cfg,
		state:       SeqUninitialised,
		act:         deps.Actuator,
		remote:      remote{cmd: deps.Commander, node: deps.Node, log: log},
		liveness:    deps.Liveness,
		modes:       deps.Modes,
		log:         log,
		newID:       deps.NewCycleID,
		burnTime:    cfg.BurnTime,
		burnTimeSet: cfg.BurnTime > 0,
	}
	s.countdown = NewTimeline(s.countdownTable())
	s.fire = NewTimeline(s.fireTable())
	return s, nil
}

// State returns the current sequencer state.
func (s *Sequencer) State() SequencerState { return s.state }

// BurnTime returns the effective burn time.
func (s *Sequencer) BurnTime() time.Duration {
	if !s.burnTimeSet {
		return DefaultBurnTime
	}
	return s.burnTime
}

// Window returns the countdown window.
func (s *Sequencer) Window() time.Duration { return s.cfg.Window }

// ChecksGood reports whether the last prefire check passed.
func (s *Sequencer) ChecksGood() bool { return s.checksGood }

// CycleID returns the id of the current ignition cycle, or "" before the first fire request.
func (s *Sequencer) CycleID() string { return s.cycleID }

// Timing returns the anchor timestamps of the current cycle.
func (s *Sequencer) Timing() SequencerTiming {
	start, _ := s.countdown.AnchorAt(AnchorSequenceStart)
	one, _ := s.countdown.AnchorAt(AnchorFireInOne)
	fire, _ := s.fire.AnchorAt(AnchorFireStart)
	return SequencerTiming{SequenceStart: start, FireInOne: one, FireStart: fire}
}

// MilestoneDone reports whether a countdown or fire milestone has completed in this cycle.
func (s *Sequencer) MilestoneDone(name string) bool {
	return s.countdown.Done(name) || s.fire.Done(name)
}

// SetBurnTime sets the burn time used by the next countdown.
func (s *Sequencer) SetBurnTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("burn time %v must be positive", d)
	}
	if s.state == SeqCountdown || s.state == SeqFire {
		return ErrSequenceActive
	}
	s.burnTime = d
	s.burnTimeSet = true
	return nil
}

// SetReady closes the propellant solenoid, arms every remote valve actuator
// and the pyro bus, clears the previous cycle and enters Ready.
func (s *Sequencer) SetReady() error {
	if s.state == SeqCountdown || s.state == SeqFire {
		return ErrSequenceActive
	}
	if err := s.act.CloseSolenoid(); err != nil {
		s.log.Warnw("close solenoid rejected", "err", err)
	}
	s.remote.armAll()
	if err := s.act.Arm(); err != nil {
		s.log.Warnw("pyro arm rejected", "err", err)
	}
	if !s.burnTimeSet {
		s.burnTime = DefaultBurnTime
		s.burnTimeSet = true
	}
	s.clearCycle()
	s.state = SeqReady
	s.log.Infow("sequencer ready", "window", s.cfg.Window, "burn_time", s.burnTime)
	return nil
}

// RequestFire asks a Ready sequencer to start the countdown on its next tick.
// Safe to call from any goroutine.
func (s *Sequencer) RequestFire() {
	s.fireRequested.Store(true)
}

// FireRequested reports whether a fire request is pending.
func (s *Sequencer) FireRequested() bool {
	return s.fireRequested.Load()
}

// Halt stops an active cycle without requesting a mode change. It reports
// whether a cycle was stopped, in which case the safe configuration has
// already been commanded.
func (s *Sequencer) Halt(reason string) bool {
	s.fireRequested.Store(false)
	switch s.state {
	case SeqReady, SeqCountdown, SeqFire:
		s.enterFailedStart(reason)
		return true
	}
	return false
}

// Reset returns the sequencer to Uninitialised. The burn time is kept.
func (s *Sequencer) Reset() {
	s.clearCycle()
	s.state = SeqUninitialised
}

func (s *Sequencer) clearCycle() {
	s.fireRequested.Store(false)
	s.checksGood = false
	s.cycleID = ""
	s.countdown.Reset()
	s.fire = NewTimeline(s.fireTable())
}

// Tick advances the sequencer by one cycle. It returns the milestone that
// completed in this tick, or "" if none did. A non-nil error reports a
// milestone whose command was rejected; that milestone is retried next tick.
func (s *Sequencer) Tick(now time.Time, in Inputs) (string, error) {
	s.in = in

	switch s.state {
	case SeqUninitialised:

	case SeqReady:
		if !in.Switches.BothArmed() {
			s.failStart(errBothArmed)
			return "", nil
		}
		if s.fireRequested.CompareAndSwap(true, false) {
			s.countdown.SetAnchor(AnchorSequenceStart, now)
			s.fire = NewTimeline(s.fireTable())
			s.cycleID = s.newID()
			s.state = SeqCountdown
			s.log.Infow("countdown started", "cycle", s.cycleID, "window", s.cfg.Window)
		}

	case SeqCountdown:
		if err := s.prefireCheck(in); err != nil {
			s.checksGood = false
			s.failStart(err)
			return "", nil
		}
		s.checksGood = true
		if start, _ := s.countdown.AnchorAt(AnchorSequenceStart); now.Sub(start) > s.cfg.Window+countdownGrace {
			s.failStart(errOverrun)
			return "", nil
		}
		return s.step(s.countdown, now)

	case SeqFire:
		name, err := s.step(s.fire, now)
		if name == "" && err == nil {
			start, _ := s.fire.AnchorAt(AnchorFireStart)
			s.log.Debugw("combustion in progress", "cycle", s.cycleID, "since_fire", now.Sub(start))
		}
		return name, err

	case SeqFailedStart:
		s.holdSafe()
		s.modes.RequestMode(ModeError)

	default:
		s.state = SeqReady
	}
	return "", nil
}

func (s *Sequencer) step(t *Timeline, now time.Time) (string, error) {
	name, err := t.Step(now)
	if err != nil {
		s.log.Warnw("milestone rejected", "milestone", name, "cycle", s.cycleID, "err", err)
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if name != "" {
		s.log.Infow("milestone", "milestone", name, "cycle", s.cycleID)
	}
	return name, nil
}

func (s *Sequencer) prefireCheck(in Inputs) error {
	if !in.Switches.BothArmed() {
		return errBothArmed
	}
	if s.cfg.CheckHeartbeats && !s.liveness.AllRequiredActive() {
		return errHeartbeat
	}
	if s.cfg.CheckValvePositions && s.countdown.Done(MilestoneCheckpoint) {
		fb := in.Feedback
		if !fb.Matches(ValveVent, false) || !fb.Matches(ValveNitrogen, false) ||
			!fb.Matches(ValveNitrousA, true) || !fb.Matches(ValveNitrousB, true) {
			return errValvePosition
		}
	}
	return nil
}

func (s *Sequencer) failStart(reason error) {
	s.log.Errorw("failed start", "cycle", s.cycleID, "state", s.state, "reason", reason)
	s.enterFailedStart(reason.Error())
	s.modes.RequestMode(ModeError)
}

func (s *Sequencer) enterFailedStart(reason string) {
	s.state = SeqFailedStart
	s.holdSafe()
	s.remote.disarmAll()
	s.log.Infow("outputs safed", "reason", reason)
}

func (s *Sequencer) holdSafe() {
	if err := s.act.CloseSolenoid(); err != nil {
		s.log.Debugw("close solenoid rejected", "err", err)
	}
	if err := s.act.Disarm(); err != nil {
		s.log.Debugw("pyro disarm rejected", "err", err)
	}
}

func (s *Sequencer) countdownTable() []Milestone {
	w := s.cfg.Window
	return []Milestone{
		{Name: MilestoneIgnition, Anchor: AnchorFireInOne, Offset: fireInOneDelay, After: MilestoneFireInOne, Action: s.ignite},
		{Name: MilestoneFireInOne, Anchor: AnchorSequenceStart, Offset: w - time.Second, After: MilestoneIgniter, Action: s.armFireInOne},
		{Name: MilestoneIgniter, Anchor: AnchorSequenceStart, Offset: w - 4*time.Second, After: MilestoneValvePreset, Action: s.fireIgniter},
		{Name: MilestoneCheckpoint, Anchor: AnchorSequenceStart, Offset: w - 6*time.Second, After: MilestoneValvePreset, Action: s.checkpoint},
		{Name: MilestoneValvePreset, Anchor: AnchorSequenceStart, Offset: w - 10*time.Second, Action: s.presetValves},
	}
}

func (s *Sequencer) fireTable() []Milestone {
	ft, b := s.cfg.FireTable, s.burnTime
	ms := []Milestone{
		{Name: MilestoneSafe, Offset: b + ft.Safe, After: MilestoneFinalVentOpen, Action: s.safeAfterBurn},
		{Name: MilestoneFinalVentOpen, Offset: b + ft.FinalVentOpen, After: MilestonePurgeNitrogenClose, Action: s.valves(true, ValveVent)},
		{Name: MilestonePurgeNitrogenClose, Offset: b + ft.PurgeNitrogenClose, After: MilestonePurgeVentClose, Action: s.closeNitrogenPurge},
		{Name: MilestonePurgeVentClose, Offset: b + ft.PurgeVentClose, After: MilestonePurgeNitrogenOpen, Action: s.valves(false, ValveVent)},
		{Name: MilestonePurgeNitrogenOpen, Offset: b + ft.PurgeNitrogenOpen, After: MilestonePurgeVentOpen, Action: s.valves(true, ValveNitrogen)},
		{Name: MilestonePurgeVentOpen, Offset: b + ft.PurgeVentOpen, After: MilestoneShutdown, Action: s.valves(true, ValveVent)},
		{Name: MilestoneShutdown, Offset: b + ft.Shutdown, Action: s.shutdown},
	}
	for i := range ms {
		ms[i].Anchor = AnchorFireStart
	}
	return ms
}

func (s *Sequencer) presetValves(time.Time) error {
	fb := s.in.Feedback
	s.remote.setValveGated(fb, ValveVent, false)
	s.remote.setValveGated(fb, ValveNitrogen, false)
	s.remote.setValveGated(fb, ValveNitrousA, true)
	s.remote.setValveGated(fb, ValveNitrousB, true)
	if err := s.act.Arm(); err != nil {
		s.log.Warnw("pyro re-arm rejected", "err", err)
	}
	return nil
}

func (s *Sequencer) checkpoint(time.Time) error {
	s.log.Infow("T-6 checkpoint", "cycle", s.cycleID,
		"heartbeat_check", s.cfg.CheckHeartbeats, "valve_check", s.cfg.CheckValvePositions)
	return nil
}

func (s *Sequencer) fireIgniter(time.Time) error {
	if err := s.act.FireIgniter1(); err != nil {
		return fmt.Errorf("fire igniter 1: %w", err)
	}
	return nil
}

func (s *Sequencer) armFireInOne(now time.Time) error {
	s.countdown.SetAnchor(AnchorFireInOne, now)
	return nil
}

func (s *Sequencer) ignite(now time.Time) error {
	if err := s.act.OpenSolenoid(); err != nil {
		return fmt.Errorf("open solenoid: %w", err)
	}
	s.fire.SetAnchor(AnchorFireStart, now)
	s.state = SeqFire
	return nil
}

func (s *Sequencer) valves(open bool, vs ...Valve) func(time.Time) error {
	return func(time.Time) error {
		for _, v := range vs {
			s.remote.setValveGated(s.in.Feedback, v, open)
		}
		return nil
	}
}

func (s *Sequencer) closeSolenoid() {
	if err := s.act.CloseSolenoid(); err != nil {
		s.log.Warnw("close solenoid rejected", "cycle", s.cycleID, "err", err)
	}
}

func (s *Sequencer) shutdown(now time.Time) error {
	s.valves(false, ValveNitrousA, ValveNitrousB)(now)
	s.closeSolenoid()
	return nil
}

func (s *Sequencer) closeNitrogenPurge(now time.Time) error {
	s.valves(false, ValveNitrogen)(now)
	s.closeSolenoid()
	return nil
}

func (s *Sequencer) safeAfterBurn(now time.Time) error {
	s.valves(false, ValveVent)(now)
	if err := s.act.Disarm(); err != nil {
		s.log.Warnw("pyro disarm rejected", "cycle", s.cycleID, "err", err)
	}
	s.remote.disarmAll()
	s.state = SeqUninitialised
	s.modes.RequestMode(ModePostFire)
	return nil
}
