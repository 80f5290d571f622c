package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string                `json:"event,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	State            string                `json:"state"`
	Pump             string                `json:"pump"`
	Ready            bool                  `json:"ready"`
	ThresholdPercent int                   `json:"threshold_percent"`
	Light            string                `json:"light,omitempty"`
	UptimeSeconds    int64                 `json:"uptime_seconds"`
	StartTime        string                `json:"start_time"`
	Timestamp        string                `json:"timestamp"`
	Irrigation       IrrigationJSON        `json:"irrigation"`
	Sensors          map[string]SensorJSON `json:"sensors"`
	Faults           []FaultJSON           `json:"faults"`
	Supervisor       SupervisorJSON        `json:"supervisor"`
	MQTT             MQTTStatus            `json:"mqtt"`
	Counts           CountsJSON            `json:"event_counts"`
	Network          *NetworkJSON          `json:"network,omitempty"`
	Config           ConfigJSON            `json:"config"`
}

// IrrigationJSON reports the irrigation context.
type IrrigationJSON struct {
	DailyCount               int    `json:"daily_count"`
	MaxDaily                 int    `json:"max_daily"`
	LastEnd                  string `json:"last_end,omitempty"`
	CooldownRemainingSeconds int64  `json:"cooldown_remaining_seconds"`
	RunStart                 string `json:"run_start,omitempty"`
	RunSeconds               int64  `json:"run_seconds,omitempty"`
	Manual                   bool   `json:"manual,omitempty"`
}

// SensorJSON is the latest reading and health of one sensor.
type SensorJSON struct {
	Value             *float64 `json:"value"` // null without a valid reading
	Valid             bool     `json:"valid"`
	Fault             string   `json:"fault,omitempty"`
	ConsecutiveErrors int      `json:"consecutive_errors"`
	TotalErrors       int      `json:"total_errors"`
	Disconnected      bool     `json:"disconnected"`
	LastValid         string   `json:"last_valid,omitempty"`
}

// FaultJSON is an active fault.
type FaultJSON struct {
	Class  string `json:"class"`
	Reason string `json:"reason"`
	Sensor string `json:"sensor,omitempty"`
	At     string `json:"at"`
	Detail string `json:"detail,omitempty"`
}

// SupervisorJSON reports the supervisor's counters.
type SupervisorJSON struct {
	RecoveryAttempts   int  `json:"recovery_attempts"`
	RestartRecommended bool `json:"restart_recommended"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
	Dropped   int    `json:"dropped"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	IrrigationsStarted   int `json:"irrigations_started"`
	IrrigationsCompleted int `json:"irrigations_completed"`
	Denied               int `json:"denied"`
	EmergencyStops       int `json:"emergency_stops"`
	SensorFaults         int `json:"sensor_faults"`
	Recoveries           int `json:"recoveries"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs           int64  `json:"tick_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
	ConfigFile       string `json:"config_file,omitempty"`
	ThresholdSource  string `json:"threshold_source"`
	DurationMs       int64  `json:"duration_ms"`
	ManualDurationMs int64  `json:"manual_duration_ms"`
	CooldownMs       int64  `json:"cooldown_ms"`
	MaxPumpRuntimeMs int64  `json:"max_pump_runtime_ms"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func seconds(d time.Duration) int64 {
	return int64(d.Truncate(time.Second).Seconds())
}

// PumpString renders the pump state.
func PumpString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Controller
	irr := snap.Config.Irrigation

	state := string(c.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:            state,
		Pump:             PumpString(c.PumpOn),
		Ready:            snap.Ready,
		ThresholdPercent: c.Threshold,
		Light:            string(c.Light),
		UptimeSeconds:    seconds(snap.Uptime()),
		StartTime:        formatTime(snap.StartTime),
		Timestamp:        formatTime(snap.Now),
		Irrigation: IrrigationJSON{
			DailyCount:               c.Context.DailyCount,
			MaxDaily:                 irr.MaxDaily,
			LastEnd:                  formatTime(c.Context.LastIrrigationEnd),
			CooldownRemainingSeconds: seconds(c.CooldownRemaining),
		},
		Sensors: buildSensors(c),
		Faults:  []FaultJSON{},
		Supervisor: SupervisorJSON{
			RecoveryAttempts:   c.RecoveryAttempts,
			RestartRecommended: c.RestartRecommended,
		},
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
			Dropped:   snap.MQTTDropped,
		},
		Counts: CountsJSON{
			IrrigationsStarted:   c.Counts.IrrigationsStarted,
			IrrigationsCompleted: c.Counts.IrrigationsCompleted,
			Denied:               c.Counts.Denied,
			EmergencyStops:       c.Counts.EmergencyStops,
			SensorFaults:         c.Counts.SensorFaults,
			Recoveries:           c.Counts.Recoveries,
		},
		Config: ConfigJSON{
			TickMs:           snap.Config.TickMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			ConfigFile:       snap.Config.ConfigFile,
			ThresholdSource:  snap.Config.ThresholdSource,
			DurationMs:       irr.Duration.Milliseconds(),
			ManualDurationMs: irr.ManualDuration.Milliseconds(),
			CooldownMs:       irr.Cooldown.Milliseconds(),
			MaxPumpRuntimeMs: irr.MaxPumpRuntime.Milliseconds(),
		},
	}

	if c.State == logic.StateIrrigating {
		inner.Irrigation.RunStart = formatTime(c.Context.PumpStart)
		inner.Irrigation.RunSeconds = seconds(c.Time.Sub(c.Context.PumpStart))
		inner.Irrigation.Manual = c.Context.Manual
	}

	for _, f := range c.Faults {
		inner.Faults = append(inner.Faults, FaultJSON{
			Class:  string(f.Class),
			Reason: string(f.Reason),
			Sensor: string(f.Sensor),
			At:     formatTime(f.At),
			Detail: f.Detail,
		})
	}
	return inner
}

func buildSensors(c logic.Snapshot) map[string]SensorJSON {
	sensors := make(map[string]SensorJSON, len(c.Health))
	for kind, h := range c.Health {
		s := SensorJSON{
			ConsecutiveErrors: h.ConsecutiveErrors,
			TotalErrors:       h.TotalErrors,
			Disconnected:      h.Disconnected,
			LastValid:         formatTime(h.LastValid),
		}
		if r, ok := c.Readings[kind]; ok {
			s.Valid = r.Valid
			s.Fault = string(r.Fault)
			if r.Valid {
				v := math.Round(r.Value*10) / 10
				s.Value = &v
			}
		}
		sensors[string(kind)] = s
	}
	return sensors
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
