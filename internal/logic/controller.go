package logic

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

// TickInput is one control loop iteration's worth of inputs.
type TickInput struct {
	Now             time.Time
	Reads           []ReadResult // only the kinds that were due
	Threshold       int
	EmergencyButton bool // button level; the controller detects the edge
}

// TickOutput tells the run loop what to actuate and publish.
type TickOutput struct {
	PumpOn             bool
	PumpChanged        bool
	Recover            bool
	RestartRecommended bool
	Events             []Event
	Snapshot           Snapshot
}

// Controller sequences one tick: commands and emergency stop, validation of
// every sample, the engine step, then the supervisor cross-check.
type Controller struct {
	cfg        config.Config
	validator  *Validator
	engine     *Engine
	supervisor *Supervisor

	startTime     time.Time
	lastRead      map[SensorKind]time.Time
	readings      map[SensorKind]ValidatedReading
	pending       []Command
	buttonHeld    bool
	threshold     int
	counts        EventCounts
	lastHeartbeat time.Time
}

// NewController wires a validator, engine and supervisor from cfg.
func NewController(cfg config.Config, startTime time.Time) *Controller {
	return &Controller{
		cfg:           cfg,
		validator:     NewValidator(cfg),
		engine:        NewEngine(cfg.Irrigation, startTime),
		supervisor:    NewSupervisor(cfg.Safety, cfg.Irrigation),
		startTime:     startTime,
		lastRead:      make(map[SensorKind]time.Time),
		readings:      make(map[SensorKind]ValidatedReading),
		threshold:     cfg.Irrigation.ThresholdPercent,
		lastHeartbeat: startTime,
	}
}

// Due returns the enabled sensor kinds whose minimum read interval has
// elapsed, in evaluation order.
func (c *Controller) Due(now time.Time) []SensorKind {
	var due []SensorKind
	for _, kind := range SensorKinds {
		if !c.validator.Enabled(kind) {
			continue
		}
		last, ok := c.lastRead[kind]
		if !ok || now.Sub(last) >= SensorConfig(c.cfg, kind).Interval {
			due = append(due, kind)
		}
	}
	return due
}

// Submit queues a manual command for the next tick.
func (c *Controller) Submit(cmd Command) {
	c.pending = append(c.pending, cmd)
}

// Tick runs one control cycle.
func (c *Controller) Tick(in TickInput) TickOutput {
	now := in.Now
	var out TickOutput

	// Commands and the emergency stop edge are taken first.
	estop := in.EmergencyButton && !c.buttonHeld
	c.buttonHeld = in.EmergencyButton
	var reset, manual bool
	for _, cmd := range c.pending {
		switch cmd.Type {
		case CommandEmergencyStop:
			estop = true
		case CommandReset:
			reset = true
		case CommandManualIrrigate:
			manual = true
		}
	}
	c.pending = c.pending[:0]
	if c.buttonHeld {
		reset = false
	}

	// Validation of everything read this tick.
	var readOK, readFailed int
	for _, r := range in.Reads {
		kind := r.Sample.Kind
		c.lastRead[kind] = now
		before, tracked := c.validator.Health(kind)
		if !tracked {
			continue
		}

		var reading ValidatedReading
		if r.Err != nil {
			readFailed++
			reading = c.validator.Fail(kind, now)
		} else {
			readOK++
			sample := r.Sample
			if sample.Time.IsZero() {
				sample.Time = now
			}
			reading = c.validator.Validate(sample)
		}
		c.readings[kind] = reading
		if !reading.Valid {
			c.counts.SensorFaults++
		}

		after, _ := c.validator.Health(kind)
		switch {
		case after.Disconnected && !before.Disconnected:
			out.Events = append(out.Events, Event{Timestamp: now, Type: EventSensorDisconnected, Sensor: kind, Reason: reading.Fault})
		case !after.Disconnected && before.Disconnected:
			out.Events = append(out.Events, Event{Timestamp: now, Type: EventSensorReconnected, Sensor: kind})
		}
	}

	// Decision.
	c.threshold = c.engine.ClampThreshold(in.Threshold)
	moistureHealth, _ := c.validator.Health(SensorMoisture)
	d := c.engine.Step(EngineInput{
		Now:            now,
		Moisture:       c.readings[SensorMoisture],
		MoistureHealth: moistureHealth,
		Threshold:      c.threshold,
		EmergencyStop:  estop,
		Reset:          reset,
		ManualIrrigate: manual,
	})
	out.Events = append(out.Events, c.decisionEvents(now, d)...)
	pumpChanged := d.PumpChanged

	// Supervisor cross-check.
	v := c.supervisor.Check(SupervisorInput{
		Now:          now,
		ReadOK:       readOK,
		ReadFailures: readFailed,
		PumpOn:       c.engine.PumpOn(),
		Reset:        reset && !estop,
	})
	for _, f := range v.Faults {
		if f.Class == ClassSupervisor {
			out.Events = append(out.Events, Event{Timestamp: now, Type: EventSupervisorFault, Reason: f.Reason, From: d.State, To: d.State})
		}
	}
	if v.ForcePumpOff {
		var fault *Fault
		for _, f := range v.Faults {
			if f.Class == ClassActuation {
				fault = f
			}
		}
		h := c.engine.Halt(now, fault)
		pumpChanged = pumpChanged || h.PumpChanged
		out.Events = append(out.Events, c.decisionEvents(now, h)...)
	}
	if v.Recover {
		c.counts.Recoveries++
		out.Events = append(out.Events, Event{Timestamp: now, Type: EventRecoveryAttempt, From: d.State, To: d.State})
	}

	out.PumpOn = c.engine.PumpOn()
	out.PumpChanged = pumpChanged
	out.Recover = v.Recover
	out.RestartRecommended = v.RestartRecommended
	out.Snapshot = c.snapshot(now, v.RestartRecommended)
	return out
}

func (c *Controller) decisionEvents(now time.Time, d Decision) []Event {
	var events []Event
	base := Event{Timestamp: now, From: d.Previous, To: d.State, Manual: d.Manual}
	covered := false

	if d.Reset {
		e := base
		e.Type = EventReset
		events = append(events, e)
		covered = true
	}
	switch d.Action {
	case ActionStart:
		c.counts.IrrigationsStarted++
		e := base
		e.Type = EventIrrigationStart
		events = append(events, e)
		covered = true
	case ActionStop:
		c.counts.IrrigationsCompleted++
		e := base
		e.Type = EventIrrigationStop
		events = append(events, e)
		covered = true
	case ActionDeny:
		c.counts.Denied++
		e := base
		e.Type = EventIrrigationDenied
		e.Reason = d.Reason
		events = append(events, e)
		covered = true
	}
	if d.Fault != nil {
		c.counts.EmergencyStops++
		e := base
		e.Type = EventEmergencyStop
		e.Reason = d.Fault.Reason
		e.Sensor = d.Fault.Sensor
		events = append(events, e)
		covered = true
	}
	if !covered && d.Previous != d.State {
		e := base
		e.Type = EventStateChange
		events = append(events, e)
	}
	return events
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}

// Snapshot returns the current state without running a tick.
func (c *Controller) Snapshot(now time.Time) Snapshot {
	return c.snapshot(now, c.supervisor.liveness != nil)
}

func (c *Controller) snapshot(now time.Time, restart bool) Snapshot {
	readings := make(map[SensorKind]ValidatedReading, len(c.readings))
	for k, r := range c.readings {
		readings[k] = r
	}

	var faults []Fault
	if f := c.engine.Fault(); f != nil {
		faults = append(faults, *f)
	}
	for _, f := range c.supervisor.Faults() {
		faults = append(faults, *f)
	}

	snap := Snapshot{
		Time:               now,
		StartTime:          c.startTime,
		State:              c.engine.State(),
		PumpOn:             c.engine.PumpOn(),
		Threshold:          c.threshold,
		Context:            c.engine.Context(),
		CooldownRemaining:  c.engine.CooldownRemaining(now),
		Readings:           readings,
		Health:             c.validator.HealthAll(),
		Faults:             faults,
		Counts:             c.counts,
		RecoveryAttempts:   c.supervisor.Attempts(),
		RestartRecommended: restart,
	}
	if r, ok := readings[SensorLight]; ok && r.Valid {
		snap.Light = ClassifyLight(r.Value, c.cfg.Validation)
	}
	return snap
}
