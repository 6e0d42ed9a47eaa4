package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ignition-core/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"join": func(ids []int) string {
		if len(ids) == 0 {
			return "none"
		}
		out := ""
		for i, id := range ids {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprint(id)
		}
		return out
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Ignition Controller</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alarm { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
{{with .Status}}
<h1>Ignition Controller<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{if or (eq .Mode "ABORT") (eq .Mode "ERROR")}}alarm{{else}}on{{end}}">{{.Mode}}</td></tr>
<tr><th>Pyro</th><td id="pyro">{{.Pyro}}</td></tr>
<tr><th>Valves</th><td id="valve">{{.Valve}}</td></tr>
<tr><th>Sequencer</th><td id="sequencer">{{.Sequencer.State}}</td></tr>
<tr><th>Cycle</th><td id="cycle">{{.Sequencer.CycleID}}</td></tr>
<tr><th>Burn time</th><td id="burn">{{.Sequencer.BurnTimeMs}}ms</td></tr>
<tr><th>Fire start</th><td id="fire-start">{{.Sequencer.FireStart}}</td></tr>
</table>

<h2>Switches</h2>
<table>
<tr><th>Master power</th><td class="{{if .Switches.MasterPower}}on{{else}}off{{end}}">{{onOff .Switches.MasterPower}}</td></tr>
<tr><th>Master valve</th><td class="{{if .Switches.MasterValve}}on{{else}}off{{end}}">{{onOff .Switches.MasterValve}}</td></tr>
<tr><th>Master pyro</th><td class="{{if .Switches.MasterPyro}}on{{else}}off{{end}}">{{onOff .Switches.MasterPyro}}</td></tr>
<tr><th>Sequencer override</th><td class="{{if .Switches.SequencerOverride}}on{{else}}off{{end}}">{{onOff .Switches.SequencerOverride}}</td></tr>
<tr><th>Solenoid</th><td class="{{if .Switches.Solenoid}}on{{else}}off{{end}}">{{onOff .Switches.Solenoid}}</td></tr>
</table>

<h2>Valve feedback</h2>
<table>
{{if .Feedback.Initialised}}
<tr><th>Vent</th><td>{{onOff .Feedback.Vent}}</td></tr>
<tr><th>Nitrogen</th><td>{{onOff .Feedback.Nitrogen}}</td></tr>
<tr><th>Nitrous A</th><td>{{onOff .Feedback.NitrousA}}</td></tr>
<tr><th>Nitrous B</th><td>{{onOff .Feedback.NitrousB}}</td></tr>
{{else}}
<tr><th>Feedback</th><td class="off">not received</td></tr>
{{end}}
</table>

<h2>Nodes</h2>
<table>
<tr><th>Active</th><td>{{join .Heartbeat.Active}}</td></tr>
<tr><th>Required</th><td>{{join .Heartbeat.Required}}</td></tr>
<tr><th>Healthy</th><td class="{{if .Heartbeat.Healthy}}on{{else}}alarm{{end}}">{{if .Heartbeat.Healthy}}yes{{else}}no{{end}}</td></tr>
<tr><th>Losses</th><td>{{.Heartbeat.Losses}}</td></tr>
<tr><th>Link queue</th><td>{{.Link.Queue.Depth}} queued, {{.Link.Queue.Sent}} sent, {{.Link.Queue.Dropped}} dropped</td></tr>
<tr><th>Link frames</th><td>{{.Link.Receiver.Frames}} received, {{.Link.Receiver.Errors}} errors</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.MQTT.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime $.Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
{{if .Config.LinkPort}}<tr><th>Link</th><td>{{.Config.LinkPort}}</td></tr>{{end}}
</table>
{{end}}

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var fields = ["mode", "pyro", "valve"];

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type !== "status" || !msg.data) return;
        var s = msg.data.status;
        fields.forEach(function(f) { document.getElementById(f).textContent = s[f]; });
        document.getElementById("mode").className = (s.mode === "ABORT" || s.mode === "ERROR") ? "alarm" : "on";
        document.getElementById("sequencer").textContent = s.sequencer.state;
        document.getElementById("cycle").textContent = s.sequencer.cycle_id || "";
        document.getElementById("burn").textContent = s.sequencer.burn_time_ms + "ms";
        document.getElementById("fire-start").textContent = s.sequencer.fire_start || "";
      } catch (e) {}
    };
  }

  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.StatusJSON
		Uptime time.Duration
	}{
		StatusJSON: status.Build(snap),
		Uptime:     snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
