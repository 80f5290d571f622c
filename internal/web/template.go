package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
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
	"stateOrUnknown": func(s logic.State) string {
		if s == "" {
			return "UNKNOWN"
		}
		return string(s)
	},
	"stateClass": func(s logic.State) string {
		switch s {
		case logic.StateIrrigating:
			return "on"
		case logic.StateEmergencyStopped:
			return "alarm"
		case "":
			return "unknown"
		}
		return "off"
	},
	"pump": status.PumpString,
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Irrigation Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.alarm { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Irrigation Controller</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td class="{{stateClass .Controller.State}}">{{stateOrUnknown .Controller.State}}</td></tr>
<tr><th>Pump</th><td class="{{if .Controller.PumpOn}}on{{else}}off{{end}}">{{pump .Controller.PumpOn}}</td></tr>
<tr><th>Threshold</th><td>{{.Controller.Threshold}}%</td></tr>
<tr><th>Today</th><td>{{.Controller.Context.DailyCount}} / {{.Config.Irrigation.MaxDaily}}</td></tr>
<tr><th>Last irrigation</th><td>{{when .Controller.Context.LastIrrigationEnd}}</td></tr>
{{if .Controller.CooldownRemaining}}<tr><th>Cooldown</th><td>{{uptime .Controller.CooldownRemaining}}</td></tr>{{end}}
{{if .Controller.Light}}<tr><th>Light</th><td>{{.Controller.Light}}</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Sensors</h2>
<table>
{{range .Sensors}}<tr><th>{{.Kind}}</th><td class="{{if .Health.Disconnected}}disconnected{{end}}">{{if .Reading.Valid}}{{printf "%.1f" .Reading.Value}}{{else if .Reading.Fault}}{{.Reading.Fault}}{{else}}-{{end}}{{if .Health.ConsecutiveErrors}} ({{.Health.ConsecutiveErrors}} errors){{end}}</td></tr>
{{end}}</table>

{{if .Controller.Faults}}<h2>Faults</h2>
<table>
{{range .Controller.Faults}}<tr><th class="alarm">{{.Class}}</th><td>{{.Reason}}{{if .Sensor}} ({{.Sensor}}){{end}}{{if .Detail}}: {{.Detail}}{{end}}</td></tr>
{{end}}</table>
{{if .Controller.RestartRecommended}}<p class="alarm">Restart recommended</p>{{end}}
{{end}}
{{if .Controls}}<h2>Control</h2>
<p>
<form method="post" action="/api/irrigate"><button>Irrigate now</button></form>
<form method="post" action="/api/emergency-stop"><button>Emergency stop</button></form>
<form method="post" action="/api/reset"><button>Reset</button></form>
</p>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .MQTTBuffered}} ({{.MQTTBuffered}} buffered){{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Irrigations started</th><td>{{.Controller.Counts.IrrigationsStarted}}</td></tr>
<tr><th>Irrigations completed</th><td>{{.Controller.Counts.IrrigationsCompleted}}</td></tr>
<tr><th>Denied</th><td>{{.Controller.Counts.Denied}}</td></tr>
<tr><th>Emergency stops</th><td>{{.Controller.Counts.EmergencyStops}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Controller.Counts.SensorFaults}}</td></tr>
<tr><th>Recoveries</th><td>{{.Controller.Counts.Recoveries}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{when .StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Threshold source</th><td>{{.Config.ThresholdSource}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
</body>
</html>
`

type sensorRow struct {
	Kind    logic.SensorKind
	Reading logic.ValidatedReading
	Health  logic.SensorHealth
}

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Sensors  []sensorRow
		Controls bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Controls: controls,
	}
	for _, kind := range logic.SensorKinds {
		h, ok := snap.Controller.Health[kind]
		if !ok {
			continue
		}
		data.Sensors = append(data.Sensors, sensorRow{Kind: kind, Reading: snap.Controller.Readings[kind], Health: h})
	}
	indexTmpl.Execute(w, data)
}
