// Package status provides a thread-safe status tracker for the ignition
// controller daemon. It is read by the HTTP handlers and the websocket stream.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
	"github.com/sweeney/ignition-core/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	WindowMs    int64
	Broker      string
	HTTPPort    string
	LinkPort    string
}

// Heartbeat is the liveness view of the remote nodes.
type Heartbeat struct {
	Active   uint32
	Required uint32
	Losses   uint64
}

// Link is the remote link traffic view.
type Link struct {
	Queue    link.QueueStats
	Receiver link.ReceiverStats
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Core          logic.Status
	Heartbeat     Heartbeat
	Link          Link
	Actuator      *gpio.State
	Counts        map[logic.EventType]int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	version uint64
	changed chan struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Core:      logic.Status{Mode: logic.ModeInit},
			Counts:    make(map[logic.EventType]int),
			StartTime: startTime,
			Config:    cfg,
		},
		changed: make(chan struct{}),
	}
}

// Update sets the decision core state. Called from runLoop on every tick.
// Watchers are woken only when the state differs from the previous update.
func (t *Tracker) Update(core logic.Status) {
	t.mu.Lock()
	if t.snap.Core != core {
		t.snap.Core = core
		t.notifyLocked()
	}
	t.mu.Unlock()
}

// RecordEvents counts published events by type.
func (t *Tracker) RecordEvents(events []logic.Event) {
	if len(events) == 0 {
		return
	}
	t.mu.Lock()
	for _, e := range events {
		t.snap.Counts[e.Type]++
	}
	t.notifyLocked()
	t.mu.Unlock()
}

// SetHeartbeat sets the heartbeat view.
func (t *Tracker) SetHeartbeat(hb Heartbeat) {
	t.mu.Lock()
	if t.snap.Heartbeat != hb {
		t.snap.Heartbeat = hb
		t.notifyLocked()
	}
	t.mu.Unlock()
}

// SetLink sets the link counters.
func (t *Tracker) SetLink(l Link) {
	t.mu.Lock()
	t.snap.Link = l
	t.mu.Unlock()
}

// SetActuator sets the last read actuator line state.
func (t *Tracker) SetActuator(st gpio.State) {
	t.mu.Lock()
	t.snap.Actuator = &st
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = make(map[logic.EventType]int, len(t.snap.Counts))
	for k, v := range t.snap.Counts {
		s.Counts[k] = v
	}
	if t.snap.Actuator != nil {
		a := *t.snap.Actuator
		s.Actuator = &a
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// Changed returns a channel that is closed at the next state change, and the
// version it was issued for.
func (t *Tracker) Changed() (<-chan struct{}, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed, t.version
}

// notifyLocked must be called with mu held for writing.
func (t *Tracker) notifyLocked() {
	t.version++
	close(t.changed)
	t.changed = make(chan struct{})
}
