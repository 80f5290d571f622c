package logic

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

// Action is the engine's verdict for one step.
type Action string

const (
	ActionNone  Action = ""
	ActionStart Action = "START"
	ActionStop  Action = "STOP"
	ActionDeny  Action = "DENY"
)

// EngineInput is everything the engine looks at in one step.
type EngineInput struct {
	Now            time.Time
	Moisture       ValidatedReading // latest reading, possibly stale or invalid
	MoistureHealth SensorHealth
	Threshold      int
	EmergencyStop  bool // edge, already debounced
	Reset          bool
	ManualIrrigate bool
}

// Decision is the outcome of one step.
type Decision struct {
	Previous    State
	State       State
	PumpOn      bool
	PumpChanged bool
	Action      Action
	Reason      FaultReason // why a start was denied
	Manual      bool
	Fault       *Fault // raised this step
	Reset       bool   // an emergency stop was cleared this step
}

// Engine is the irrigation state machine. It is the only writer of State and
// IrrigationContext and the only component that decides pump actuation.
type Engine struct {
	cfg          config.Irrigation
	state        State
	ctx          IrrigationContext
	pumpOn       bool
	fault        *Fault
	lastMoisture time.Time // last valid moisture reading, or start/reset time
}

// NewEngine creates an idle engine. The rolling day starts at start.
func NewEngine(cfg config.Irrigation, start time.Time) *Engine {
	return &Engine{
		cfg:          cfg,
		state:        StateIdle,
		ctx:          IrrigationContext{DayStart: start},
		lastMoisture: start,
	}
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Context returns a copy of the irrigation context.
func (e *Engine) Context() IrrigationContext { return e.ctx }

// PumpOn reports the commanded pump state.
func (e *Engine) PumpOn() bool { return e.pumpOn }

// Fault returns the fault that put the engine in EmergencyStopped, if any.
func (e *Engine) Fault() *Fault { return e.fault }

// ClampThreshold pins t to the configured threshold band.
func (e *Engine) ClampThreshold(t int) int {
	if t < e.cfg.MinThreshold {
		return e.cfg.MinThreshold
	}
	if t > e.cfg.MaxThreshold {
		return e.cfg.MaxThreshold
	}
	return t
}

// CooldownRemaining returns how long until another run may start.
func (e *Engine) CooldownRemaining(now time.Time) time.Duration {
	if e.ctx.LastIrrigationEnd.IsZero() {
		return 0
	}
	left := e.cfg.Cooldown - now.Sub(e.ctx.LastIrrigationEnd)
	if left < 0 {
		return 0
	}
	return left
}

// Step evaluates one control tick.
func (e *Engine) Step(in EngineInput) Decision {
	d := Decision{Previous: e.state}
	now := in.Now

	e.rollDay(now)
	if in.Moisture.Valid && in.Moisture.Time.After(e.lastMoisture) {
		e.lastMoisture = in.Moisture.Time
	}

	// Emergency stop beats everything else.
	if in.EmergencyStop && e.cfg.EmergencyStopEnabled {
		if e.state != StateEmergencyStopped {
			e.halt(now, newFault(ClassActuation, ReasonEmergencyStop, "", now, "emergency stop signal"), &d)
		}
		return e.finish(d)
	}

	if e.state == StateEmergencyStopped {
		if !in.Reset {
			return e.finish(d)
		}
		e.state = StateIdle
		e.fault = nil
		e.lastMoisture = now
		d.Reset = true
	}

	if in.MoistureHealth.Disconnected && now.Sub(e.lastMoisture) > e.cfg.SensorErrorTimeout {
		e.halt(now, newFault(ClassSensor, ReasonDisconnected, SensorMoisture, now,
			"no valid moisture reading within "+e.cfg.SensorErrorTimeout.String()), &d)
		return e.finish(d)
	}

	switch e.state {
	case StateIrrigating:
		e.stepIrrigating(now, &d)

	case StateCooldownWait:
		if e.CooldownRemaining(now) == 0 {
			e.state = StateIdle
			break
		}
		if need, manual := e.need(in); need {
			if e.ctx.DailyCount >= e.cfg.MaxDaily {
				e.deny(ReasonDailyLimit, manual, &d)
				e.state = StateDailyLimitReached
			} else if manual {
				e.deny(ReasonCooldown, manual, &d)
			}
		}

	case StateDailyLimitReached:
		if _, manual := e.need(in); manual {
			e.deny(ReasonDailyLimit, manual, &d)
		}

	case StateIdle:
		need, manual := e.need(in)
		if !need {
			break
		}
		switch {
		case e.ctx.DailyCount >= e.cfg.MaxDaily:
			e.deny(ReasonDailyLimit, manual, &d)
			e.state = StateDailyLimitReached
		case e.CooldownRemaining(now) > 0:
			e.deny(ReasonCooldown, manual, &d)
			e.state = StateCooldownWait
		default:
			e.start(now, manual, &d)
		}
	}

	return e.finish(d)
}

// Halt forces the pump off and enters EmergencyStopped with the given fault.
// The supervisor's independent runtime check reaches the engine this way.
func (e *Engine) Halt(now time.Time, f *Fault) Decision {
	d := Decision{Previous: e.state}
	if e.state != StateEmergencyStopped || e.pumpOn {
		e.halt(now, f, &d)
	}
	return e.finish(d)
}

func (e *Engine) stepIrrigating(now time.Time, d *Decision) {
	elapsed := now.Sub(e.ctx.PumpStart)
	run := e.ctx.RunDuration
	protect := e.cfg.RuntimeProtection

	switch {
	case elapsed >= run && (!protect || run <= e.cfg.MaxPumpRuntime):
		e.ctx.LastIrrigationEnd = now
		e.ctx.DailyCount++
		e.state = StateIdle
		d.Action = ActionStop
		d.Manual = e.ctx.Manual
		e.setPump(false, d)
	case protect && elapsed >= e.cfg.MaxPumpRuntime:
		e.halt(now, newFault(ClassActuation, ReasonRuntimeProtection, "", now,
			"pump ran "+elapsed.String()), d)
	}
}

// need reports whether watering is wanted this step, and whether the want
// comes from a manual request.
func (e *Engine) need(in EngineInput) (need, manual bool) {
	if in.ManualIrrigate {
		return true, true
	}
	m := in.Moisture
	if !m.Valid || in.MoistureHealth.Disconnected {
		return false, false
	}
	// A reading taken before the last run ended says nothing about the soil now.
	if !e.ctx.LastIrrigationEnd.IsZero() && !m.Time.After(e.ctx.LastIrrigationEnd) {
		return false, false
	}
	return m.Value < float64(e.ClampThreshold(in.Threshold)), false
}

func (e *Engine) start(now time.Time, manual bool, d *Decision) {
	e.state = StateIrrigating
	e.ctx.PumpStart = now
	e.ctx.Manual = manual
	e.ctx.RunDuration = e.cfg.Duration
	if manual {
		e.ctx.RunDuration = e.cfg.ManualDuration
	}
	d.Action = ActionStart
	d.Manual = manual
	e.setPump(true, d)
}

func (e *Engine) deny(reason FaultReason, manual bool, d *Decision) {
	d.Action = ActionDeny
	d.Reason = reason
	d.Manual = manual
}

func (e *Engine) halt(now time.Time, f *Fault, d *Decision) {
	if e.state == StateIrrigating {
		// The run watered, so it counts against cooldown and the daily cap.
		e.ctx.LastIrrigationEnd = now
		e.ctx.DailyCount++
	}
	e.state = StateEmergencyStopped
	if e.fault == nil {
		e.fault = f
	}
	d.Fault = f
	e.setPump(false, d)
}

func (e *Engine) rollDay(now time.Time) {
	if e.cfg.DayLength <= 0 {
		return
	}
	elapsed := now.Sub(e.ctx.DayStart)
	if elapsed < e.cfg.DayLength {
		return
	}
	days := elapsed / e.cfg.DayLength
	e.ctx.DayStart = e.ctx.DayStart.Add(days * e.cfg.DayLength)
	e.ctx.DailyCount = 0
	if e.state == StateDailyLimitReached {
		e.state = StateIdle
	}
}

func (e *Engine) setPump(on bool, d *Decision) {
	if e.pumpOn != on {
		e.pumpOn = on
		d.PumpChanged = true
	}
}

func (e *Engine) finish(d Decision) Decision {
	d.State = e.state
	d.PumpOn = e.pumpOn
	return d
}
