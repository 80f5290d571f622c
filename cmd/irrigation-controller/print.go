package main

import (
	"fmt"
	"io"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

// printState reads every enabled sensor once and prints raw and calibrated
// values. It is used to check wiring and calibration on the bench.
func printState(w io.Writer, cfg config.Config, r sensor.Reader) {
	for _, kind := range logic.SensorKinds {
		sc := logic.SensorConfig(cfg, kind)
		if !sc.Enabled {
			fmt.Fprintf(w, "%s: disabled\n", kind)
			continue
		}
		raw, err := r.Read(kind)
		if err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", kind, err)
			continue
		}
		fmt.Fprintf(w, "%s: raw=%d value=%.1f\n", kind, raw, logic.Calibrate(sc.Calibration, raw))
	}

	if !cfg.Potentiometer.Enabled {
		return
	}
	adc, ok := r.(sensor.ADC)
	if !ok {
		return
	}
	raw, err := adc.ReadChannel(cfg.Potentiometer.Channel)
	if err != nil {
		fmt.Fprintf(w, "threshold knob: error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "threshold knob: raw=%d\n", raw)
}
