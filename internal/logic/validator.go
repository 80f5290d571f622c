package logic

import (
	"math"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

// Validator turns raw samples into validated readings and owns SensorHealth.
type Validator struct {
	shared  config.Validation
	sensors map[SensorKind]*sensorTrack
}

type sensorTrack struct {
	cfg       config.Sensor
	health    SensorHealth
	recent    []timedValue // last N calibrated values, valid or not
	lastValid float64
	hasValid  bool
}

type timedValue struct {
	value float64
	at    time.Time
}

// NewValidator creates a validator for every enabled sensor in cfg.
func NewValidator(cfg config.Config) *Validator {
	v := &Validator{
		shared:  cfg.Validation,
		sensors: make(map[SensorKind]*sensorTrack),
	}
	for _, kind := range SensorKinds {
		sc := SensorConfig(cfg, kind)
		if !sc.Enabled {
			continue
		}
		v.sensors[kind] = &sensorTrack{
			cfg:    sc,
			health: SensorHealth{Kind: kind},
		}
	}
	return v
}

// SensorConfig returns the configuration section for kind.
func SensorConfig(cfg config.Config, kind SensorKind) config.Sensor {
	switch kind {
	case SensorMoisture:
		return cfg.Moisture
	case SensorTemperature:
		return cfg.Temperature
	case SensorHumidity:
		return cfg.Humidity
	case SensorLight:
		return cfg.Light
	}
	return config.Sensor{}
}

// Calibrate maps raw onto the calibrated scale by linear interpolation.
func Calibrate(c config.Calibration, raw int) float64 {
	if c.RawA == c.RawB {
		return c.ValueA
	}
	frac := float64(raw-c.RawA) / float64(c.RawB-c.RawA)
	value := c.ValueA + frac*(c.ValueB-c.ValueA)
	if c.Clamp {
		lo, hi := math.Min(c.ValueA, c.ValueB), math.Max(c.ValueA, c.ValueB)
		value = math.Max(lo, math.Min(hi, value))
	}
	return value
}

// Enabled reports whether kind is validated at all.
func (v *Validator) Enabled(kind SensorKind) bool {
	_, ok := v.sensors[kind]
	return ok
}

// Validate runs calibration, range, rate-of-change and consistency checks on
// a sample and updates that sensor's health.
func (v *Validator) Validate(s RawSample) ValidatedReading {
	t, ok := v.sensors[s.Kind]
	if !ok {
		return ValidatedReading{Kind: s.Kind, Fault: ReasonDisconnected, Time: s.Time}
	}

	value := Calibrate(t.cfg.Calibration, s.Raw)
	t.remember(value, s.Time, v.shared.ConsistencySamples)

	var reason FaultReason
	switch {
	case t.cfg.RangeCheck && (value < t.cfg.Min || value > t.cfg.Max):
		reason = ReasonOutOfRange
	case t.cfg.MaxDelta > 0 && t.hasValid && !t.health.Disconnected &&
		math.Abs(value-t.lastValid) > t.cfg.MaxDelta && !t.settled(s.Time, v.shared):
		reason = ReasonInconsistent
	case t.cfg.Consistency && !t.consistent(s.Time, v.shared):
		reason = ReasonInconsistent
	}

	if reason != "" {
		return v.reject(t, reason, value, s.Time)
	}

	t.health.ConsecutiveErrors = 0
	t.health.Disconnected = false
	t.health.LastValid = s.Time
	t.lastValid = value
	t.hasValid = true
	return ValidatedReading{Kind: s.Kind, Value: value, Valid: true, Time: s.Time}
}

// Fail records a read failure for kind.
func (v *Validator) Fail(kind SensorKind, at time.Time) ValidatedReading {
	t, ok := v.sensors[kind]
	if !ok {
		return ValidatedReading{Kind: kind, Fault: ReasonDisconnected, Time: at}
	}
	return v.reject(t, ReasonReadFailure, 0, at)
}

func (v *Validator) reject(t *sensorTrack, reason FaultReason, value float64, at time.Time) ValidatedReading {
	t.health.ConsecutiveErrors++
	t.health.TotalErrors++
	if t.health.ConsecutiveErrors >= v.shared.DisconnectThreshold {
		t.health.Disconnected = true
	}
	if t.health.Disconnected {
		reason = ReasonDisconnected
	}
	return ValidatedReading{Kind: t.health.Kind, Value: value, Fault: reason, Time: at}
}

// Health returns the current health of kind.
func (v *Validator) Health(kind SensorKind) (SensorHealth, bool) {
	t, ok := v.sensors[kind]
	if !ok {
		return SensorHealth{}, false
	}
	return t.health, true
}

// HealthAll returns a fresh copy of every tracked sensor's health.
func (v *Validator) HealthAll() map[SensorKind]SensorHealth {
	out := make(map[SensorKind]SensorHealth, len(v.sensors))
	for kind, t := range v.sensors {
		out[kind] = t.health
	}
	return out
}

func (t *sensorTrack) remember(value float64, at time.Time, n int) {
	t.recent = append(t.recent, timedValue{value: value, at: at})
	if len(t.recent) > n {
		t.recent = t.recent[len(t.recent)-n:]
	}
}

// settled reports whether the last N samples all fall inside the window and
// agree. A jump past MaxDelta that has settled is a real change in the
// measured value and becomes the new rate-of-change reference.
func (t *sensorTrack) settled(now time.Time, shared config.Validation) bool {
	if len(t.recent) < shared.ConsistencySamples {
		return false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range t.recent {
		if now.Sub(s.at) > shared.ConsistencyWindow {
			return false
		}
		lo = math.Min(lo, s.value)
		hi = math.Max(hi, s.value)
	}
	return hi-lo <= shared.ConsistencyThreshold
}

// consistent reports whether the last N samples inside the window agree.
// With fewer than N samples there is nothing to compare yet.
func (t *sensorTrack) consistent(now time.Time, shared config.Validation) bool {
	if len(t.recent) < shared.ConsistencySamples {
		return true
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range t.recent {
		if now.Sub(s.at) > shared.ConsistencyWindow {
			return true
		}
		lo = math.Min(lo, s.value)
		hi = math.Max(hi, s.value)
	}
	return hi-lo <= shared.ConsistencyThreshold
}
