// Package config holds the immutable tuning of the irrigation controller.
// Defaults mirror the field-tested firmware values; a YAML file may override
// any subset of them. Every component receives its section at construction
// and never mutates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Calibration maps a raw transducer value onto a physical value by linear
// interpolation between two reference points, e.g. dry/wet for moisture or
// dark/bright for light.
type Calibration struct {
	RawA   int     `yaml:"raw_a"`
	ValueA float64 `yaml:"value_a"`
	RawB   int     `yaml:"raw_b"`
	ValueB float64 `yaml:"value_b"`
	// Clamp pins values outside the calibrated band to the nearest bound.
	// When false an out-of-band value is left for the range check to reject.
	Clamp bool `yaml:"clamp"`
}

// Sensor is the per-kind validation configuration.
type Sensor struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"` // minimum time between reads
	Calibration Calibration   `yaml:"calibration"`
	RangeCheck  bool          `yaml:"range_check"`
	Min         float64       `yaml:"min"`
	Max         float64       `yaml:"max"`
	MaxDelta    float64       `yaml:"max_delta"` // 0 disables the rate-of-change check
	Consistency bool          `yaml:"consistency"`
}

// Validation holds settings shared by all sensors.
type Validation struct {
	ConsistencySamples   int           `yaml:"consistency_samples"`   // N, 2..16
	ConsistencyThreshold float64       `yaml:"consistency_threshold"` // max spread of the last N values
	ConsistencyWindow    time.Duration `yaml:"consistency_window"`    // samples older than this are ignored
	DisconnectThreshold  int           `yaml:"disconnect_threshold"`  // consecutive errors, 1..1000
	LowLightPercent      float64       `yaml:"low_light_percent"`
	HighLightPercent     float64       `yaml:"high_light_percent"`
}

// Irrigation holds the decision engine settings.
type Irrigation struct {
	ThresholdPercent     int           `yaml:"threshold_percent"` // used when no threshold input is fitted
	MinThreshold         int           `yaml:"min_threshold"`
	MaxThreshold         int           `yaml:"max_threshold"`
	Duration             time.Duration `yaml:"duration"`        // >= 1s
	ManualDuration       time.Duration `yaml:"manual_duration"` // >= 1s
	Cooldown             time.Duration `yaml:"cooldown"`
	MaxDaily             int           `yaml:"max_daily"` // 1..1000
	DayLength            time.Duration `yaml:"day_length"`
	RuntimeProtection    bool          `yaml:"runtime_protection"`
	MaxPumpRuntime       time.Duration `yaml:"max_pump_runtime"`
	SensorErrorTimeout   time.Duration `yaml:"sensor_error_timeout"`
	EmergencyStopEnabled bool          `yaml:"emergency_stop_enabled"`
}

// Safety holds the supervisor settings.
type Safety struct {
	LivenessTimeout  time.Duration `yaml:"liveness_timeout"`
	AutoRecovery     bool          `yaml:"auto_recovery"`
	MaxSensorErrors  int           `yaml:"max_sensor_errors"` // failed reads before a recovery attempt
	RecoveryAttempts int           `yaml:"recovery_attempts"`
	RecoveryDelay    time.Duration `yaml:"recovery_delay"`
}

// Potentiometer configures the analog threshold knob.
type Potentiometer struct {
	Enabled    bool `yaml:"enabled"`
	Channel    int  `yaml:"channel"`
	Samples    int  `yaml:"samples"`    // moving average length
	Deadband   int  `yaml:"deadband"`   // raw counts ignored around the last accepted value
	Hysteresis int  `yaml:"hysteresis"` // percent change needed before the output moves
	RawMax     int  `yaml:"raw_max"`
}

// Config is the full controller configuration.
type Config struct {
	Moisture      Sensor        `yaml:"moisture"`
	Temperature   Sensor        `yaml:"temperature"`
	Humidity      Sensor        `yaml:"humidity"`
	Light         Sensor        `yaml:"light"`
	Validation    Validation    `yaml:"validation"`
	Irrigation    Irrigation    `yaml:"irrigation"`
	Safety        Safety        `yaml:"safety"`
	Potentiometer Potentiometer `yaml:"potentiometer"`
}

// Defaults returns the stock configuration.
func Defaults() Config {
	percent := func(rawDry int) Calibration {
		return Calibration{RawA: rawDry, ValueA: 0, RawB: 0, ValueB: 100}
	}
	tenths := Calibration{RawA: 0, ValueA: 0, RawB: 1000, ValueB: 100}

	return Config{
		Moisture: Sensor{
			Enabled:     true,
			Interval:    5 * time.Second,
			Calibration: percent(4095),
			RangeCheck:  true,
			Min:         0,
			Max:         100,
			MaxDelta:    20,
			Consistency: true,
		},
		Temperature: Sensor{
			Enabled:     true,
			Interval:    2 * time.Second,
			Calibration: tenths,
			RangeCheck:  true,
			Min:         -10,
			Max:         60,
			Consistency: true,
		},
		Humidity: Sensor{
			Enabled:     true,
			Interval:    2 * time.Second,
			Calibration: tenths,
			RangeCheck:  true,
			Min:         0,
			Max:         100,
			Consistency: true,
		},
		Light: Sensor{
			Enabled:     false,
			Interval:    time.Second,
			Calibration: percent(4095),
			RangeCheck:  true,
			Min:         0,
			Max:         100,
			MaxDelta:    30,
			Consistency: true,
		},
		Validation: Validation{
			ConsistencySamples:   3,
			ConsistencyThreshold: 5,
			ConsistencyWindow:    30 * time.Second,
			DisconnectThreshold:  10,
			LowLightPercent:      20,
			HighLightPercent:     80,
		},
		Irrigation: Irrigation{
			ThresholdPercent:     30,
			MinThreshold:         5,
			MaxThreshold:         50,
			Duration:             5 * time.Second,
			ManualDuration:       10 * time.Second,
			Cooldown:             5 * time.Minute,
			MaxDaily:             10,
			DayLength:            24 * time.Hour,
			RuntimeProtection:    true,
			MaxPumpRuntime:       5 * time.Minute,
			SensorErrorTimeout:   10 * time.Second,
			EmergencyStopEnabled: true,
		},
		Safety: Safety{
			LivenessTimeout:  30 * time.Second,
			AutoRecovery:     true,
			MaxSensorErrors:  5,
			RecoveryAttempts: 3,
			RecoveryDelay:    5 * time.Second,
		},
		Potentiometer: Potentiometer{
			Enabled:    false,
			Channel:    2,
			Samples:    5,
			Deadband:   50,
			Hysteresis: 2,
			RawMax:     4095,
		},
	}
}

// Load reads a YAML file and overlays it on Defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks documented ranges. It returns every violation joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if !c.Moisture.Enabled {
		errs = append(errs, errors.New("moisture: sensor cannot be disabled"))
	}
	for name, s := range map[string]Sensor{
		"moisture":    c.Moisture,
		"temperature": c.Temperature,
		"humidity":    c.Humidity,
		"light":       c.Light,
	} {
		if !s.Enabled {
			continue
		}
		check(s.Interval > 0, "%s: interval must be positive", name)
		check(s.Calibration.RawA != s.Calibration.RawB, "%s: calibration raw points must differ", name)
		check(s.Min < s.Max, "%s: min %.1f must be below max %.1f", name, s.Min, s.Max)
		check(s.MaxDelta >= 0, "%s: max_delta must not be negative", name)
	}

	v := c.Validation
	check(v.ConsistencySamples >= 2 && v.ConsistencySamples <= 16, "validation: consistency_samples %d outside 2..16", v.ConsistencySamples)
	check(v.ConsistencyThreshold > 0, "validation: consistency_threshold must be positive")
	check(v.ConsistencyWindow > 0, "validation: consistency_window must be positive")
	check(v.DisconnectThreshold >= 1 && v.DisconnectThreshold <= 1000, "validation: disconnect_threshold %d outside 1..1000", v.DisconnectThreshold)

	i := c.Irrigation
	check(i.MinThreshold >= 0 && i.MaxThreshold <= 100 && i.MinThreshold <= i.MaxThreshold,
		"irrigation: threshold band %d..%d outside 0..100", i.MinThreshold, i.MaxThreshold)
	check(i.ThresholdPercent >= 0 && i.ThresholdPercent <= 100, "irrigation: threshold_percent %d outside 0..100", i.ThresholdPercent)
	check(i.Duration >= time.Second, "irrigation: duration must be at least 1s")
	check(i.ManualDuration >= time.Second, "irrigation: manual_duration must be at least 1s")
	check(i.Cooldown >= 0, "irrigation: cooldown must not be negative")
	check(i.MaxDaily >= 1 && i.MaxDaily <= 1000, "irrigation: max_daily %d outside 1..1000", i.MaxDaily)
	check(i.DayLength >= time.Hour, "irrigation: day_length must be at least 1h")
	check(i.MaxPumpRuntime > 0, "irrigation: max_pump_runtime must be positive")
	check(i.SensorErrorTimeout > 0, "irrigation: sensor_error_timeout must be positive")

	s := c.Safety
	check(s.LivenessTimeout > 0, "safety: liveness_timeout must be positive")
	check(s.MaxSensorErrors >= 1, "safety: max_sensor_errors must be at least 1")
	check(s.RecoveryAttempts >= 0, "safety: recovery_attempts must not be negative")
	check(s.RecoveryDelay >= 0, "safety: recovery_delay must not be negative")

	if c.Potentiometer.Enabled {
		p := c.Potentiometer
		check(p.Samples >= 1, "potentiometer: samples must be at least 1")
		check(p.RawMax > 0, "potentiometer: raw_max must be positive")
		check(p.Deadband >= 0 && p.Hysteresis >= 0, "potentiometer: deadband and hysteresis must not be negative")
	}

	return errors.Join(errs...)
}

// Warnings reports settings that are legal but likely mistakes.
func (c Config) Warnings() []string {
	var w []string
	i := c.Irrigation
	if i.Cooldown < time.Minute {
		w = append(w, "irrigation cooldown is under 1 minute; this may overwater")
	}
	if i.RuntimeProtection && i.Duration >= i.MaxPumpRuntime {
		w = append(w, fmt.Sprintf("irrigation duration %v reaches max pump runtime %v; runs will end in emergency stop", i.Duration, i.MaxPumpRuntime))
	}
	if i.RuntimeProtection && i.ManualDuration >= i.MaxPumpRuntime {
		w = append(w, fmt.Sprintf("manual duration %v reaches max pump runtime %v", i.ManualDuration, i.MaxPumpRuntime))
	}
	return w
}
