package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
	"github.com/sweeney/ignition-core/internal/logic"
	"github.com/sweeney/ignition-core/internal/mqtt"
	"github.com/sweeney/ignition-core/internal/status"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type loopHarness struct {
	sup     *logic.Supervisor
	monitor *logic.Monitor
	act     *gpio.FakeActuator
	queue   *link.Queue
	pub     *mqtt.FakePublisher
	tracker *status.Tracker

	abortOnLoss bool

	tick chan time.Time
	lost chan int
	sig  chan os.Signal
	done chan error
}

func newLoopHarness(t *testing.T, abortOnLoss bool) *loopHarness {
	t.Helper()
	h := &loopHarness{
		act:     gpio.NewFakeActuator(),
		queue:   link.NewQueue(64),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{TickMs: 100}),
		tick:    make(chan time.Time),
		lost:    make(chan int),
		sig:     make(chan os.Signal, 1),
		done:    make(chan error, 1),
	}
	h.pub.Connected = true

	var err error
	h.monitor, err = logic.NewMonitor(logic.MonitorConfig{Required: []int{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	h.sup, err = logic.NewSupervisor(logic.SupervisorDeps{
		Actuator:   h.act,
		Commander:  h.queue,
		Node:       logic.ValveNode{Type: 2, Addr: 1},
		Liveness:   h.monitor,
		NewCycleID: func() string { return "cycle-1" },
	})
	if err != nil {
		t.Fatal(err)
	}
	h.abortOnLoss = abortOnLoss
	return h
}

// start runs the loop in its own goroutine. Configure fakes before calling it.
func (h *loopHarness) start() *loopHarness {
	go func() {
		h.done <- runLoop(loop{
			sup:         h.sup,
			monitor:     h.monitor,
			actuator:    h.act,
			queue:       h.queue,
			publisher:   h.pub,
			mqttStatus:  h.pub,
			tracker:     h.tracker,
			abortOnLoss: h.abortOnLoss,
			now:         fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond),
			tick:        h.tick,
			lost:        h.lost,
			sig:         h.sig,
		})
	}()
	return h
}

func (h *loopHarness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.tick <- time.Time{}
	}
}

// stop delivers s and waits for runLoop to return. The harness fields are
// safe to read afterwards.
func (h *loopHarness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

func TestRunLoopStartupAndShutdown(t *testing.T) {
	h := newLoopHarness(t, false).start()
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(h.pub.SystemEvents))
	}
	if se := h.pub.SystemEvents[0]; se.Event != "STARTUP" || !se.Retained {
		t.Errorf("unexpected first event: %+v", se)
	}
	se := h.pub.SystemEvents[1]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(se.RawPayload, &parsed); err != nil {
		t.Fatalf("invalid shutdown payload: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected payload: %+v", parsed.Status)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("shutdown payload should carry the refreshed MQTT state")
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := newLoopHarness(t, false).start()
	h.stop(t, syscall.SIGINT)

	se := h.pub.SystemEvents[len(h.pub.SystemEvents)-1]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGINT" {
		t.Errorf("unexpected event: %+v", se)
	}
}

func TestRunLoopFirstTickReady(t *testing.T) {
	h := newLoopHarness(t, false).start()
	h.ticks(1)
	h.stop(t, syscall.SIGTERM)

	modes := h.pub.EventsOfType(logic.EventMode)
	if len(modes) != 1 || modes[0].From != "INIT" || modes[0].To != "READY" {
		t.Fatalf("unexpected mode events: %+v", modes)
	}
	snap := h.tracker.Snapshot()
	if snap.Core.Mode != logic.ModeReady {
		t.Errorf("tracker mode: got %s, want READY", snap.Core.Mode)
	}
	if snap.Counts[logic.EventMode] != 1 {
		t.Errorf("tracker counts: got %v", snap.Counts)
	}
	if snap.Heartbeat.Required != 0b110 {
		t.Errorf("tracker required mask: got %b", snap.Heartbeat.Required)
	}
	if snap.Actuator == nil || !snap.Actuator.Interlock {
		t.Errorf("tracker actuator: got %+v", snap.Actuator)
	}
}

func TestRunLoopManualArm(t *testing.T) {
	h := newLoopHarness(t, false).start()
	h.ticks(1)
	h.sup.SetSwitchStates(logic.BitSequencerOverride | logic.BitMasterPyro)
	h.ticks(1)
	h.stop(t, syscall.SIGTERM)

	if h.act.Count("arm") != 1 {
		t.Errorf("expected one arm command, got %d", h.act.Count("arm"))
	}
	pyro := h.pub.EventsOfType(logic.EventPyro)
	if len(pyro) != 1 || pyro[0].To != "ARMED" {
		t.Fatalf("unexpected pyro events: %+v", pyro)
	}
	if pyro[0].Mode != logic.ModeManual {
		t.Errorf("event mode: got %s, want MANUAL", pyro[0].Mode)
	}
}

func TestRunLoopHeartbeatLostAborts(t *testing.T) {
	h := newLoopHarness(t, true).start()
	h.ticks(1)
	h.lost <- 1
	h.ticks(1)
	h.stop(t, syscall.SIGTERM)

	lost := h.pub.EventsOfType(logic.EventHeartbeatLost)
	if len(lost) != 1 || lost[0].Detail != "node 1" {
		t.Fatalf("unexpected heartbeat events: %+v", lost)
	}
	if h.sup.Mode() != logic.ModeAbort {
		t.Errorf("expected ABORT, got %s", h.sup.Mode())
	}
	if st := h.queue.Stats(); st.Depth == 0 {
		t.Error("expected disarm-all queued for the valve node")
	}
}

func TestRunLoopHeartbeatLostReportedOnly(t *testing.T) {
	h := newLoopHarness(t, false).start()
	h.ticks(1)
	h.lost <- 1
	h.ticks(1)
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.EventsOfType(logic.EventHeartbeatLost)) != 1 {
		t.Error("loss should still be published")
	}
	if h.sup.Mode() != logic.ModeReady {
		t.Errorf("expected READY, got %s", h.sup.Mode())
	}
}

func TestRunLoopUnrequiredNodeNeverAborts(t *testing.T) {
	h := newLoopHarness(t, true).start()
	h.ticks(1)
	h.lost <- 5
	h.ticks(1)
	h.stop(t, syscall.SIGTERM)

	if h.sup.Mode() != logic.ModeReady {
		t.Errorf("expected READY, got %s", h.sup.Mode())
	}
}

func TestRunLoopPublishError(t *testing.T) {
	h := newLoopHarness(t, false)
	h.pub.PublishError = errors.New("broker down")
	h.start()
	h.ticks(3)
	h.stop(t, syscall.SIGTERM)

	if h.sup.Mode() != logic.ModeReady {
		t.Errorf("loop should keep ticking despite publish errors, mode %s", h.sup.Mode())
	}
	found := false
	for _, se := range h.pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestIntakeKeepalive(t *testing.T) {
	m, err := logic.NewMonitor(logic.MonitorConfig{Required: []int{1}})
	if err != nil {
		t.Fatal(err)
	}
	in := intake{monitor: m, log: zap.NewNop().Sugar()}

	in.Keepalive(1)
	if !m.Active(1) {
		t.Error("node 1 should be active after keepalive")
	}
	in.Keepalive(99) // out of range is logged, not fatal
	if m.Status() != 0b10 {
		t.Errorf("status: got %b, want 10", m.Status())
	}
}

func TestSignalName(t *testing.T) {
	if signalName(syscall.SIGINT) != "SIGINT" || signalName(syscall.SIGTERM) != "SIGTERM" {
		t.Error("unexpected signal names")
	}
	if signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("expected UNKNOWN for SIGHUP")
	}
}

func TestPrintState(t *testing.T) {
	var buf bytes.Buffer
	st := gpio.State{Interlock: true, Armed: true}
	if err := printState(&buf, st, []string{"/dev/ttyAMA0"}, false); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.Contains(got, "Interlock: ENGAGED, Arm: ON, Solenoid: OFF") {
		t.Errorf("unexpected output: %q", got)
	}
	if !strings.Contains(got, "/dev/ttyAMA0") {
		t.Errorf("expected serial port listed: %q", got)
	}
}

func TestPrintStateJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printState(&buf, gpio.State{Solenoid: true}, nil, true); err != nil {
		t.Fatal(err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["solenoid"] != true || parsed["interlock"] != false {
		t.Errorf("unexpected JSON: %v", parsed)
	}
}
