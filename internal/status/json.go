package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
	"github.com/sweeney/ignition-core/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Mode          string         `json:"mode"`
	Pyro          string         `json:"pyro"`
	Valve         string         `json:"valve"`
	Sequencer     SequencerJSON  `json:"sequencer"`
	Switches      SwitchesJSON   `json:"switches"`
	Feedback      FeedbackJSON   `json:"feedback"`
	Heartbeat     HeartbeatJSON  `json:"heartbeat"`
	Link          LinkJSON       `json:"link"`
	Actuator      *gpio.State    `json:"actuator,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        map[string]int `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// SequencerJSON is the JSON representation of the sequencer state.
type SequencerJSON struct {
	State         string `json:"state"`
	CycleID       string `json:"cycle_id,omitempty"`
	BurnTimeMs    int64  `json:"burn_time_ms"`
	WindowMs      int64  `json:"window_ms"`
	ChecksGood    bool   `json:"checks_good"`
	FirePending   bool   `json:"fire_pending"`
	SequenceStart string `json:"sequence_start,omitempty"`
	FireInOne     string `json:"fire_in_one,omitempty"`
	FireStart     string `json:"fire_start,omitempty"`
}

// SwitchesJSON is the JSON representation of the operator panel.
type SwitchesJSON struct {
	MasterPower       bool `json:"master_power"`
	MasterValve       bool `json:"master_valve"`
	MasterPyro        bool `json:"master_pyro"`
	SequencerOverride bool `json:"sequencer_override"`
	ValveNitrousA     bool `json:"valve_nitrous_a"`
	ValveNitrousB     bool `json:"valve_nitrous_b"`
	ValveNitrogen     bool `json:"valve_nitrogen"`
	ValveDischarge    bool `json:"valve_discharge"`
	Solenoid          bool `json:"solenoid"`
}

// FeedbackJSON is the JSON representation of remote valve feedback.
type FeedbackJSON struct {
	Initialised bool `json:"initialised"`
	Vent        bool `json:"vent"`
	Nitrogen    bool `json:"nitrogen"`
	NitrousA    bool `json:"nitrous_a"`
	NitrousB    bool `json:"nitrous_b"`
}

// HeartbeatJSON reports node liveness.
type HeartbeatJSON struct {
	Active   []int  `json:"active"`
	Required []int  `json:"required"`
	Healthy  bool   `json:"healthy"`
	Losses   uint64 `json:"losses"`
}

// LinkJSON reports link traffic counters.
type LinkJSON struct {
	Queue    link.QueueStats    `json:"queue"`
	Receiver link.ReceiverStats `json:"receiver"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	WindowMs    int64  `json:"window_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	LinkPort    string `json:"link_port,omitempty"`
}

func nodes(mask uint32) []int {
	out := []int{}
	for id := 0; id < logic.MaxNodes; id++ {
		if mask&(1<<id) != 0 {
			out = append(out, id)
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Core
	sw := c.Switches
	fb := c.Feedback

	counts := make(map[string]int, len(snap.Counts))
	for k, v := range snap.Counts {
		counts[string(k)] = v
	}

	return StatusInner{
		Mode:  orUnknown(string(c.Mode)),
		Pyro:  orUnknown(string(c.Pyro)),
		Valve: orUnknown(string(c.Valve)),
		Sequencer: SequencerJSON{
			State:         orUnknown(string(c.Sequencer)),
			CycleID:       c.CycleID,
			BurnTimeMs:    c.BurnTime.Milliseconds(),
			WindowMs:      c.Window.Milliseconds(),
			ChecksGood:    c.ChecksGood,
			FirePending:   c.FirePending,
			SequenceStart: stamp(c.Timing.SequenceStart),
			FireInOne:     stamp(c.Timing.FireInOne),
			FireStart:     stamp(c.Timing.FireStart),
		},
		Switches: SwitchesJSON{
			MasterPower:       sw.MasterPower,
			MasterValve:       sw.MasterValve,
			MasterPyro:        sw.MasterPyro,
			SequencerOverride: sw.SequencerOverride,
			ValveNitrousA:     sw.ValveNitrousA,
			ValveNitrousB:     sw.ValveNitrousB,
			ValveNitrogen:     sw.ValveNitrogen,
			ValveDischarge:    sw.ValveDischarge,
			Solenoid:          sw.Solenoid,
		},
		Feedback: FeedbackJSON{
			Initialised: fb.Initialised,
			Vent:        fb.Open[logic.ValveVent],
			Nitrogen:    fb.Open[logic.ValveNitrogen],
			NitrousA:    fb.Open[logic.ValveNitrousA],
			NitrousB:    fb.Open[logic.ValveNitrousB],
		},
		Heartbeat: HeartbeatJSON{
			Active:   nodes(snap.Heartbeat.Active),
			Required: nodes(snap.Heartbeat.Required),
			Healthy:  snap.Heartbeat.Active&snap.Heartbeat.Required == snap.Heartbeat.Required,
			Losses:   snap.Heartbeat.Losses,
		},
		Link:          LinkJSON{Queue: snap.Link.Queue, Receiver: snap.Link.Receiver},
		Actuator:      snap.Actuator,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        counts,
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			WindowMs:    snap.Config.WindowMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			LinkPort:    snap.Config.LinkPort,
		},
	}
}

// Build returns the status structure for snap.
func Build(snap Snapshot) StatusJSON {
	return StatusJSON{Status: buildInner(snap)}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(Build(snap), "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
