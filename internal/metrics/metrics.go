// Package metrics exposes controller state as Prometheus collectors. The run
// loop feeds it one status snapshot per tick; the web server wraps its
// handlers for request accounting and serves the registry on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
)

const namespace = "irrigation"

var states = []logic.State{
	logic.StateIdle,
	logic.StateIrrigating,
	logic.StateCooldownWait,
	logic.StateDailyLimitReached,
	logic.StateEmergencyStopped,
}

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	state              *prometheus.GaugeVec
	pump               prometheus.Gauge
	threshold          prometheus.Gauge
	dailyCount         prometheus.Gauge
	cooldownRemaining  prometheus.Gauge
	sensorValue        *prometheus.GaugeVec
	sensorErrors       *prometheus.GaugeVec
	sensorDisconnected *prometheus.GaugeVec
	events             *prometheus.CounterVec
	faults             *prometheus.GaugeVec
	recoveryAttempts   prometheus.Gauge
	restartRecommended prometheus.Gauge
	mqttConnected      prometheus.Gauge
	mqttBuffered       prometheus.Gauge
	mqttDropped        prometheus.Gauge
	tickDuration       prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec

	// last counts seen, so cumulative snapshot counts become counter deltas.
	// Observe is only called from the run loop.
	last logic.EventCounts
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Irrigation state machine state (1 for the current state).",
		}, []string{"state"}),
		pump:              gauge("pump_on", "Pump relay output (1 on, 0 off)."),
		threshold:         gauge("threshold_percent", "Effective moisture threshold after clamping."),
		dailyCount:        gauge("daily_count", "Irrigations started in the current day window."),
		cooldownRemaining: gauge("cooldown_remaining_seconds", "Time until the next automatic irrigation may start."),
		sensorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_value",
			Help:      "Latest valid calibrated sensor value.",
		}, []string{"sensor"}),
		sensorErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_consecutive_errors",
			Help:      "Consecutive invalid readings per sensor.",
		}, []string{"sensor"}),
		sensorDisconnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_disconnected",
			Help:      "Sensor disconnected flag (1 disconnected).",
		}, []string{"sensor"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Notable controller events by type.",
		}, []string{"event"}),
		faults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_faults",
			Help:      "Active faults by class and reason.",
		}, []string{"class", "reason", "sensor"}),
		recoveryAttempts:   gauge("recovery_attempts", "Sensor bus recovery attempts in the current failure streak."),
		restartRecommended: gauge("restart_recommended", "Supervisor restart recommendation (1 recommended)."),
		mqttConnected:      gauge("mqtt_connected", "MQTT broker connection (1 connected)."),
		mqttBuffered:       gauge("mqtt_buffered_messages", "Messages held in the offline buffer."),
		mqttDropped:        gauge("mqtt_dropped_messages", "Messages dropped from the offline buffer since startup."),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Histogram of control tick durations including sensor reads.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.state,
		m.pump,
		m.threshold,
		m.dailyCount,
		m.cooldownRemaining,
		m.sensorValue,
		m.sensorErrors,
		m.sensorDisconnected,
		m.events,
		m.faults,
		m.recoveryAttempts,
		m.restartRecommended,
		m.mqttConnected,
		m.mqttBuffered,
		m.mqttDropped,
		m.tickDuration,
		m.httpRequestsTotal,
	)
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe updates every collector from snap.
func (m *Metrics) Observe(snap status.Snapshot) {
	if m == nil {
		return
	}
	c := snap.Controller

	for _, s := range states {
		m.state.WithLabelValues(string(s)).Set(boolGauge(c.State == s))
	}
	m.pump.Set(boolGauge(c.PumpOn))
	m.threshold.Set(float64(c.Threshold))
	m.dailyCount.Set(float64(c.Context.DailyCount))
	m.cooldownRemaining.Set(c.CooldownRemaining.Seconds())

	for kind, h := range c.Health {
		label := string(kind)
		if r, ok := c.Readings[kind]; ok && r.Valid {
			m.sensorValue.WithLabelValues(label).Set(r.Value)
		} else {
			m.sensorValue.DeleteLabelValues(label)
		}
		m.sensorErrors.WithLabelValues(label).Set(float64(h.ConsecutiveErrors))
		m.sensorDisconnected.WithLabelValues(label).Set(boolGauge(h.Disconnected))
	}

	m.addCount("irrigation_started", c.Counts.IrrigationsStarted, m.last.IrrigationsStarted)
	m.addCount("irrigation_completed", c.Counts.IrrigationsCompleted, m.last.IrrigationsCompleted)
	m.addCount("denied", c.Counts.Denied, m.last.Denied)
	m.addCount("emergency_stop", c.Counts.EmergencyStops, m.last.EmergencyStops)
	m.addCount("sensor_fault", c.Counts.SensorFaults, m.last.SensorFaults)
	m.addCount("recovery", c.Counts.Recoveries, m.last.Recoveries)
	m.last = c.Counts

	m.faults.Reset()
	for _, f := range c.Faults {
		m.faults.WithLabelValues(string(f.Class), string(f.Reason), string(f.Sensor)).Set(1)
	}

	m.recoveryAttempts.Set(float64(c.RecoveryAttempts))
	m.restartRecommended.Set(boolGauge(c.RestartRecommended))
	m.mqttConnected.Set(boolGauge(snap.MQTTConnected))
	m.mqttBuffered.Set(float64(snap.MQTTBuffered))
	m.mqttDropped.Set(float64(snap.MQTTDropped))
}

func (m *Metrics) addCount(event string, cur, last int) {
	if cur > last {
		m.events.WithLabelValues(event).Add(float64(cur - last))
	}
}

// ObserveTick records how long one control tick took.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next by route and response status.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}
