// Package threshold supplies the moisture threshold the engine compares
// readings against: a fixed value, or a potentiometer on the sensor ADC.
package threshold

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

// Source returns the current threshold in percent.
type Source interface {
	Current() int
}

// Fixed is a constant threshold.
type Fixed int

// Current returns f.
func (f Fixed) Current() int { return int(f) }

// Potentiometer turns a noisy analog knob into a stable threshold.
// Raw samples are averaged, changes inside the deadband are ignored, and
// the output only moves once it differs by at least the hysteresis.
type Potentiometer struct {
	adc      sensor.ADC
	cfg      config.Potentiometer
	min, max int

	mu      sync.Mutex
	window  []int
	next    int
	filled  int
	lastRaw int
	hasRaw  bool
	current int
}

// NewPotentiometer creates a potentiometer source mapping the full ADC range
// onto min..max. Current returns initial until the first sample.
func NewPotentiometer(adc sensor.ADC, cfg config.Potentiometer, min, max, initial int) *Potentiometer {
	n := cfg.Samples
	if n < 1 {
		n = 1
	}
	return &Potentiometer{
		adc:     adc,
		cfg:     cfg,
		min:     min,
		max:     max,
		window:  make([]int, n),
		current: initial,
	}
}

// Current returns the last accepted threshold.
func (p *Potentiometer) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Sample reads the knob once and updates the threshold.
func (p *Potentiometer) Sample() error {
	raw, err := p.adc.ReadChannel(p.cfg.Channel)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.window[p.next] = raw
	p.next = (p.next + 1) % len(p.window)
	if p.filled < len(p.window) {
		p.filled++
	}
	sum := 0
	for i := 0; i < p.filled; i++ {
		sum += p.window[i]
	}
	avg := sum / p.filled

	if p.hasRaw && abs(avg-p.lastRaw) < p.cfg.Deadband {
		return nil
	}
	first := !p.hasRaw
	p.lastRaw = avg
	p.hasRaw = true

	pct := p.toPercent(avg)
	if first || abs(pct-p.current) >= p.cfg.Hysteresis {
		p.current = pct
	}
	return nil
}

func (p *Potentiometer) toPercent(raw int) int {
	rawMax := p.cfg.RawMax
	if rawMax <= 0 {
		rawMax = sensor.RawMax
	}
	if raw < 0 {
		raw = 0
	}
	if raw > rawMax {
		raw = rawMax
	}
	span := float64(p.max - p.min)
	return p.min + int(math.Round(float64(raw)*span/float64(rawMax)))
}

// Run samples the knob every interval until ctx is cancelled.
// Read errors are logged once per failure run.
func (p *Potentiometer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.Sample()
			switch {
			case err != nil && !failing:
				log.Printf("threshold: potentiometer read failed, holding %d%%: %v", p.Current(), err)
				failing = true
			case err == nil && failing:
				log.Printf("threshold: potentiometer recovered")
				failing = false
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
