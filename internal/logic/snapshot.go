package logic

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

// LightLevel is a coarse classification of the light reading.
type LightLevel string

const (
	LightLow    LightLevel = "LOW"
	LightNormal LightLevel = "NORMAL"
	LightHigh   LightLevel = "HIGH"
)

// ClassifyLight buckets a light percentage using the configured bounds.
func ClassifyLight(percent float64, v config.Validation) LightLevel {
	switch {
	case percent < v.LowLightPercent:
		return LightLow
	case percent > v.HighLightPercent:
		return LightHigh
	}
	return LightNormal
}

// Snapshot is the read-only status produced every tick. It is a value type
// and its maps are fresh copies, so consumers may keep it after the tick.
type Snapshot struct {
	Time               time.Time
	StartTime          time.Time
	State              State
	PumpOn             bool
	Threshold          int
	Context            IrrigationContext
	CooldownRemaining  time.Duration
	Readings           map[SensorKind]ValidatedReading
	Health             map[SensorKind]SensorHealth
	Light              LightLevel // empty without a valid light reading
	Faults             []Fault
	Counts             EventCounts
	RecoveryAttempts   int
	RestartRecommended bool
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Time.Sub(s.StartTime)
}

// Reading returns the latest reading of kind, if any.
func (s Snapshot) Reading(kind SensorKind) (ValidatedReading, bool) {
	r, ok := s.Readings[kind]
	return r, ok
}
