package logic

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

// SupervisorInput is what the supervisor observes after the engine step.
type SupervisorInput struct {
	Now          time.Time
	ReadOK       int  // successful reads this tick
	ReadFailures int  // failed reads this tick
	PumpOn       bool // actuator state after the engine step
	Reset        bool
}

// SupervisorVerdict holds the supervisor's recommendations for one tick.
type SupervisorVerdict struct {
	Recover            bool // re-initialise the sensor bus
	ForcePumpOff       bool
	RestartRecommended bool
	Faults             []*Fault // raised this tick
}

// Supervisor watches liveness, read failures and pump runtime independently
// of the engine. It only reads engine outputs and writes its own counters.
type Supervisor struct {
	cfg        config.Safety
	protect    bool
	maxRuntime time.Duration

	lastTick    time.Time
	failStreak  int
	attempts    int
	lastAttempt time.Time

	pumpSeen    bool
	pumpOnSince time.Time

	liveness  *Fault
	exhausted *Fault
}

// NewSupervisor creates a supervisor. The pump runtime limit comes from the
// irrigation section so both checks enforce the same number.
func NewSupervisor(cfg config.Safety, irr config.Irrigation) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		protect:    irr.RuntimeProtection,
		maxRuntime: irr.MaxPumpRuntime,
	}
}

// Check runs all supervisor checks for one tick.
func (s *Supervisor) Check(in SupervisorInput) SupervisorVerdict {
	var v SupervisorVerdict
	now := in.Now

	if in.Reset {
		s.liveness = nil
		s.exhausted = nil
		s.attempts = 0
		s.failStreak = 0
	}

	if !s.lastTick.IsZero() && now.Sub(s.lastTick) > s.cfg.LivenessTimeout {
		f := newFault(ClassSupervisor, ReasonLivenessTimeout, "", now,
			"decision cycle stalled for "+now.Sub(s.lastTick).String())
		s.liveness = f
		v.Faults = append(v.Faults, f)
	}
	s.lastTick = now
	v.RestartRecommended = s.liveness != nil

	s.checkReads(in, &v)
	s.checkPump(in, &v)
	return v
}

func (s *Supervisor) checkReads(in SupervisorInput, v *SupervisorVerdict) {
	switch {
	case in.ReadOK > 0:
		s.failStreak = 0
		s.attempts = 0
		return
	case in.ReadFailures > 0:
		s.failStreak += in.ReadFailures
	default:
		return
	}

	if !s.cfg.AutoRecovery || s.failStreak < s.cfg.MaxSensorErrors {
		return
	}
	if s.attempts >= s.cfg.RecoveryAttempts {
		if s.exhausted == nil {
			s.exhausted = newFault(ClassSupervisor, ReasonRecoveryExhausted, "", in.Now,
				"sensor bus still failing after recovery attempts")
			v.Faults = append(v.Faults, s.exhausted)
		}
		return
	}
	if !s.lastAttempt.IsZero() && in.Now.Sub(s.lastAttempt) < s.cfg.RecoveryDelay {
		return
	}
	s.attempts++
	s.lastAttempt = in.Now
	v.Recover = true
}

func (s *Supervisor) checkPump(in SupervisorInput, v *SupervisorVerdict) {
	if !in.PumpOn {
		s.pumpSeen = false
		return
	}
	if !s.pumpSeen {
		s.pumpSeen = true
		s.pumpOnSince = in.Now
	}
	if s.protect && in.Now.Sub(s.pumpOnSince) >= s.maxRuntime {
		v.ForcePumpOff = true
		v.Faults = append(v.Faults, newFault(ClassActuation, ReasonRuntimeProtection, "", in.Now,
			"supervisor saw pump on for "+in.Now.Sub(s.pumpOnSince).String()))
	}
}

// Attempts returns the number of recovery attempts in the current failure run.
func (s *Supervisor) Attempts() int { return s.attempts }

// Faults returns the supervisor's persistent faults.
func (s *Supervisor) Faults() []*Fault {
	var out []*Fault
	if s.liveness != nil {
		out = append(out, s.liveness)
	}
	if s.exhausted != nil {
		out = append(out, s.exhausted)
	}
	return out
}
