package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

func newTestEngine(mod func(*config.Irrigation)) *Engine {
	cfg := config.Defaults().Irrigation
	if mod != nil {
		mod(&cfg)
	}
	return NewEngine(cfg, t0)
}

// soil builds an engine input with a fresh valid moisture reading.
func soil(now time.Time, pct float64) EngineInput {
	return EngineInput{
		Now:            now,
		Moisture:       ValidatedReading{Kind: SensorMoisture, Value: pct, Valid: true, Time: now},
		MoistureHealth: SensorHealth{Kind: SensorMoisture},
		Threshold:      30,
	}
}

// noReading builds an engine input with no usable moisture reading.
func noReading(now time.Time) EngineInput {
	return EngineInput{
		Now:            now,
		Moisture:       ValidatedReading{Kind: SensorMoisture, Fault: ReasonReadFailure, Time: now},
		MoistureHealth: SensorHealth{Kind: SensorMoisture, ConsecutiveErrors: 1},
		Threshold:      30,
	}
}

func assertFault(t *testing.T, f *Fault, target *Fault) {
	t.Helper()
	if f == nil {
		t.Fatalf("expected fault %s, got none", target.Reason)
	}
	if !errors.Is(f, target) {
		t.Fatalf("expected fault %s, got %s", target.Reason, f.Reason)
	}
}

func TestEngineStartsWhenDry(t *testing.T) {
	e := newTestEngine(nil)
	e.ctx.DailyCount = 2
	e.ctx.LastIrrigationEnd = t0.Add(-10 * time.Minute)

	d := e.Step(soil(t0, 25))

	if d.State != StateIrrigating {
		t.Fatalf("state: got %s, want %s", d.State, StateIrrigating)
	}
	if !d.PumpOn || !d.PumpChanged {
		t.Errorf("expected pump switched on, got on=%v changed=%v", d.PumpOn, d.PumpChanged)
	}
	if d.Action != ActionStart {
		t.Errorf("action: got %q, want %q", d.Action, ActionStart)
	}
	ctx := e.Context()
	if !ctx.PumpStart.Equal(t0) {
		t.Errorf("PumpStart: got %v, want %v", ctx.PumpStart, t0)
	}
	if ctx.RunDuration != 5*time.Second {
		t.Errorf("RunDuration: got %v, want 5s", ctx.RunDuration)
	}
}

func TestEngineNoStartWhenWet(t *testing.T) {
	e := newTestEngine(nil)

	for _, pct := range []float64{30, 31, 80} {
		d := e.Step(soil(t0, pct))
		if d.State != StateIdle || d.PumpOn {
			t.Errorf("moisture %.0f: got state %s pump %v", pct, d.State, d.PumpOn)
		}
		if d.Action != ActionNone {
			t.Errorf("moisture %.0f: unexpected action %q", pct, d.Action)
		}
	}
}

func TestEngineDailyLimit(t *testing.T) {
	e := newTestEngine(nil)
	e.ctx.DailyCount = 10

	d := e.Step(soil(t0, 25))

	if d.State != StateDailyLimitReached {
		t.Fatalf("state: got %s, want %s", d.State, StateDailyLimitReached)
	}
	if d.PumpOn {
		t.Error("pump must stay off")
	}
	if d.Action != ActionDeny || d.Reason != ReasonDailyLimit {
		t.Errorf("expected deny with DAILY_LIMIT, got %q %s", d.Action, d.Reason)
	}

	// Stays put while the day lasts.
	d = e.Step(soil(t0.Add(time.Hour), 10))
	if d.State != StateDailyLimitReached || d.PumpOn {
		t.Errorf("got state %s pump %v", d.State, d.PumpOn)
	}
}

func TestEngineCompletesAtExactDuration(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))

	d := e.Step(soil(t0.Add(4*time.Second), 25))
	if d.State != StateIrrigating || !d.PumpOn {
		t.Fatalf("before duration: got state %s pump %v", d.State, d.PumpOn)
	}

	end := t0.Add(5 * time.Second)
	d = e.Step(soil(end, 25))
	if d.State != StateIdle {
		t.Fatalf("state: got %s, want %s", d.State, StateIdle)
	}
	if d.PumpOn || !d.PumpChanged || d.Action != ActionStop {
		t.Errorf("expected stop, got on=%v changed=%v action=%q", d.PumpOn, d.PumpChanged, d.Action)
	}
	ctx := e.Context()
	if ctx.DailyCount != 1 {
		t.Errorf("DailyCount: got %d, want 1", ctx.DailyCount)
	}
	if !ctx.LastIrrigationEnd.Equal(end) {
		t.Errorf("LastIrrigationEnd: got %v, want %v", ctx.LastIrrigationEnd, end)
	}
}

func TestEngineStopsWithoutMoistureReading(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))

	d := e.Step(noReading(t0.Add(5 * time.Second)))
	if d.State != StateIdle || d.PumpOn {
		t.Errorf("run must end on time regardless of readings, got %s pump %v", d.State, d.PumpOn)
	}
}

func TestEngineLateTickStopsPump(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))

	d := e.Step(soil(t0.Add(2*time.Minute), 25))
	if d.PumpOn || d.Action != ActionStop {
		t.Errorf("expected stop on the first late tick, got on=%v action=%q", d.PumpOn, d.Action)
	}
}

func TestEngineCooldown(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))
	end := t0.Add(5 * time.Second)
	e.Step(soil(end, 25))

	d := e.Step(soil(end.Add(time.Second), 20))
	if d.State != StateCooldownWait {
		t.Fatalf("state: got %s, want %s", d.State, StateCooldownWait)
	}
	if d.PumpOn {
		t.Error("pump must stay off during cooldown")
	}
	if d.Action != ActionDeny || d.Reason != ReasonCooldown {
		t.Errorf("expected deny with COOLDOWN, got %q %s", d.Action, d.Reason)
	}
	if got := e.CooldownRemaining(end.Add(time.Minute)); got != 4*time.Minute {
		t.Errorf("CooldownRemaining: got %v, want 4m", got)
	}

	d = e.Step(soil(end.Add(4*time.Minute), 20))
	if d.State != StateCooldownWait || d.PumpOn {
		t.Fatalf("mid cooldown: got %s pump %v", d.State, d.PumpOn)
	}

	d = e.Step(soil(end.Add(5*time.Minute), 20))
	if d.State != StateIdle {
		t.Fatalf("after cooldown: got %s, want %s", d.State, StateIdle)
	}
	if d.PumpOn {
		t.Error("leaving cooldown must not start the pump in the same tick")
	}

	d = e.Step(soil(end.Add(5*time.Minute+time.Second), 20))
	if d.State != StateIrrigating || !d.PumpOn {
		t.Errorf("expected a new run, got %s pump %v", d.State, d.PumpOn)
	}
}

func TestEngineRuntimeProtection(t *testing.T) {
	e := newTestEngine(func(c *config.Irrigation) {
		c.Duration = 10 * time.Minute
	})
	e.Step(soil(t0, 25))

	d := e.Step(soil(t0.Add(5*time.Minute-time.Second), 25))
	if d.State != StateIrrigating || !d.PumpOn {
		t.Fatalf("below max runtime: got %s pump %v", d.State, d.PumpOn)
	}

	d = e.Step(soil(t0.Add(5*time.Minute), 25))
	if d.State != StateEmergencyStopped {
		t.Fatalf("state: got %s, want %s", d.State, StateEmergencyStopped)
	}
	if d.PumpOn || !d.PumpChanged {
		t.Error("expected pump forced off")
	}
	assertFault(t, d.Fault, ErrRuntimeProtection)
	assertFault(t, e.Fault(), ErrRuntimeProtection)
	if e.Context().DailyCount != 1 {
		t.Errorf("an interrupted run still counts, got DailyCount %d", e.Context().DailyCount)
	}
}

func TestEngineRuntimeProtectionDisabled(t *testing.T) {
	e := newTestEngine(func(c *config.Irrigation) {
		c.Duration = 10 * time.Minute
		c.RuntimeProtection = false
	})
	e.Step(soil(t0, 25))

	d := e.Step(soil(t0.Add(6*time.Minute), 25))
	if d.State != StateIrrigating || !d.PumpOn {
		t.Errorf("without protection the run continues, got %s pump %v", d.State, d.PumpOn)
	}
	d = e.Step(soil(t0.Add(10*time.Minute), 25))
	if d.State != StateIdle || d.PumpOn {
		t.Errorf("expected normal completion, got %s pump %v", d.State, d.PumpOn)
	}
}

func TestEngineDurationEqualToMaxRuntimeCompletes(t *testing.T) {
	e := newTestEngine(func(c *config.Irrigation) {
		c.Duration = 5 * time.Minute
	})
	e.Step(soil(t0, 25))

	d := e.Step(soil(t0.Add(5*time.Minute), 25))
	if d.State != StateIdle || d.Action != ActionStop {
		t.Errorf("expected normal completion, got %s %q", d.State, d.Action)
	}
	if d.Fault != nil {
		t.Errorf("unexpected fault %v", d.Fault)
	}
}

func TestEngineEmergencyStopBeatsManual(t *testing.T) {
	e := newTestEngine(nil)

	in := soil(t0, 10)
	in.EmergencyStop = true
	in.ManualIrrigate = true
	d := e.Step(in)

	if d.State != StateEmergencyStopped {
		t.Fatalf("state: got %s, want %s", d.State, StateEmergencyStopped)
	}
	if d.PumpOn {
		t.Error("pump must be off")
	}
	assertFault(t, d.Fault, ErrEmergencyStop)
}

func TestEngineEmergencyStopDuringRun(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))

	in := soil(t0.Add(2*time.Second), 25)
	in.EmergencyStop = true
	d := e.Step(in)
	if d.State != StateEmergencyStopped || d.PumpOn || !d.PumpChanged {
		t.Fatalf("got state %s on=%v changed=%v", d.State, d.PumpOn, d.PumpChanged)
	}
	ctx := e.Context()
	if ctx.DailyCount != 1 || !ctx.LastIrrigationEnd.Equal(t0.Add(2*time.Second)) {
		t.Errorf("interrupted run must be recorded, got %+v", ctx)
	}
}

func TestEngineEmergencyStoppedIsSticky(t *testing.T) {
	e := newTestEngine(nil)
	in := noReading(t0)
	in.EmergencyStop = true
	e.Step(in)

	for i := 1; i <= 3; i++ {
		in := soil(t0.Add(time.Duration(i)*time.Minute), 5)
		in.ManualIrrigate = true
		d := e.Step(in)
		if d.State != StateEmergencyStopped || d.PumpOn || d.Action != ActionNone {
			t.Fatalf("tick %d: got %s pump %v action %q", i, d.State, d.PumpOn, d.Action)
		}
	}

	in = noReading(t0.Add(10 * time.Minute))
	in.Reset = true
	d := e.Step(in)
	if d.State != StateIdle || !d.Reset {
		t.Fatalf("reset: got state %s reset %v", d.State, d.Reset)
	}
	if e.Fault() != nil {
		t.Errorf("fault should be cleared, got %v", e.Fault())
	}
}

func TestEngineResetIgnoredOutsideEmergency(t *testing.T) {
	e := newTestEngine(nil)
	in := noReading(t0)
	in.Reset = true
	d := e.Step(in)
	if d.Reset || d.State != StateIdle {
		t.Errorf("got reset=%v state=%s", d.Reset, d.State)
	}
}

func TestEngineEmergencyStopDisabled(t *testing.T) {
	e := newTestEngine(func(c *config.Irrigation) {
		c.EmergencyStopEnabled = false
	})
	in := soil(t0, 25)
	in.EmergencyStop = true
	d := e.Step(in)
	if d.State != StateIrrigating {
		t.Errorf("disabled emergency stop should be ignored, got %s", d.State)
	}
}

func TestEngineHaltFromSupervisor(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(soil(t0, 25))

	f := newFault(ClassActuation, ReasonRuntimeProtection, "", t0.Add(time.Second), "supervisor")
	d := e.Halt(t0.Add(time.Second), f)
	if d.State != StateEmergencyStopped || d.PumpOn || !d.PumpChanged {
		t.Fatalf("got %s on=%v changed=%v", d.State, d.PumpOn, d.PumpChanged)
	}
	assertFault(t, e.Fault(), ErrRuntimeProtection)

	// Halting again is a no-op.
	d = e.Halt(t0.Add(2*time.Second), f)
	if d.PumpChanged || d.Fault != nil {
		t.Errorf("second halt should do nothing, got %+v", d)
	}
}

func TestEngineThresholdClamped(t *testing.T) {
	e := newTestEngine(nil)

	tests := []struct {
		in, want int
	}{
		{0, 5},
		{5, 5},
		{30, 30},
		{50, 50},
		{90, 50},
		{-3, 5},
	}
	for _, tt := range tests {
		if got := e.ClampThreshold(tt.in); got != tt.want {
			t.Errorf("ClampThreshold(%d): got %d, want %d", tt.in, got, tt.want)
		}
	}

	in := soil(t0, 55)
	in.Threshold = 90
	if d := e.Step(in); d.PumpOn {
		t.Error("55% is above the clamped threshold of 50")
	}
	in = soil(t0.Add(time.Second), 49)
	in.Threshold = 90
	if d := e.Step(in); !d.PumpOn {
		t.Error("49% is below the clamped threshold of 50")
	}
}

func TestEngineManualOverride(t *testing.T) {
	e := newTestEngine(nil)

	in := soil(t0, 80)
	in.ManualIrrigate = true
	d := e.Step(in)
	if d.State != StateIrrigating || !d.PumpOn || !d.Manual {
		t.Fatalf("manual start: got %s pump %v manual %v", d.State, d.PumpOn, d.Manual)
	}
	if e.Context().RunDuration != 10*time.Second {
		t.Errorf("RunDuration: got %v, want 10s", e.Context().RunDuration)
	}

	d = e.Step(soil(t0.Add(5*time.Second), 80))
	if !d.PumpOn {
		t.Error("manual run should outlast the automatic duration")
	}
	d = e.Step(soil(t0.Add(10*time.Second), 80))
	if d.PumpOn || d.Action != ActionStop || !d.Manual {
		t.Errorf("manual stop: got pump %v action %q manual %v", d.PumpOn, d.Action, d.Manual)
	}

	// A manual request still respects cooldown.
	in = soil(t0.Add(time.Minute), 80)
	in.ManualIrrigate = true
	d = e.Step(in)
	if d.PumpOn || d.Action != ActionDeny || d.Reason != ReasonCooldown {
		t.Errorf("expected manual deny on cooldown, got pump %v %q %s", d.PumpOn, d.Action, d.Reason)
	}
	if d.State != StateCooldownWait {
		t.Errorf("state: got %s, want %s", d.State, StateCooldownWait)
	}
}

func TestEngineManualDeniedAtDailyLimit(t *testing.T) {
	e := newTestEngine(nil)
	e.ctx.DailyCount = 10
	e.Step(soil(t0, 25))

	in := noReading(t0.Add(time.Minute))
	in.ManualIrrigate = true
	d := e.Step(in)
	if d.PumpOn || d.Action != ActionDeny || d.Reason != ReasonDailyLimit {
		t.Errorf("got pump %v %q %s", d.PumpOn, d.Action, d.Reason)
	}
}

func TestEngineDayRollover(t *testing.T) {
	e := newTestEngine(nil)
	e.ctx.DailyCount = 10
	e.Step(soil(t0, 25))
	if e.State() != StateDailyLimitReached {
		t.Fatalf("setup: got %s", e.State())
	}

	next := t0.Add(24 * time.Hour)
	d := e.Step(soil(next, 25))
	if d.State != StateIrrigating {
		t.Fatalf("after rollover: got %s, want %s", d.State, StateIrrigating)
	}
	ctx := e.Context()
	if ctx.DailyCount != 0 {
		t.Errorf("DailyCount: got %d, want 0", ctx.DailyCount)
	}
	if !ctx.DayStart.Equal(next) {
		t.Errorf("DayStart: got %v, want %v", ctx.DayStart, next)
	}
}

func TestEngineDayRolloverSkipsWholeDays(t *testing.T) {
	e := newTestEngine(nil)
	e.Step(noReading(t0.Add(75 * time.Hour)))
	if got, want := e.Context().DayStart, t0.Add(72*time.Hour); !got.Equal(want) {
		t.Errorf("DayStart: got %v, want %v", got, want)
	}
}

func TestEngineInvalidMoistureNoDecision(t *testing.T) {
	e := newTestEngine(nil)
	in := soil(t0, 5)
	in.Moisture.Valid = false
	in.Moisture.Fault = ReasonOutOfRange
	d := e.Step(in)
	if d.State != StateIdle || d.PumpOn || d.Action != ActionNone {
		t.Errorf("got %s pump %v action %q", d.State, d.PumpOn, d.Action)
	}
}

func TestEngineMoistureDisconnectTimeout(t *testing.T) {
	e := newTestEngine(nil)
	disconnected := func(now time.Time) EngineInput {
		in := noReading(now)
		in.Moisture.Fault = ReasonDisconnected
		in.MoistureHealth = SensorHealth{Kind: SensorMoisture, ConsecutiveErrors: 10, Disconnected: true}
		return in
	}

	d := e.Step(disconnected(t0.Add(10 * time.Second)))
	if d.State != StateIdle {
		t.Fatalf("within timeout: got %s", d.State)
	}

	d = e.Step(disconnected(t0.Add(11 * time.Second)))
	if d.State != StateEmergencyStopped {
		t.Fatalf("state: got %s, want %s", d.State, StateEmergencyStopped)
	}
	assertFault(t, d.Fault, ErrDisconnected)
	if d.Fault.Sensor != SensorMoisture {
		t.Errorf("fault sensor: got %q", d.Fault.Sensor)
	}
}

func TestEngineIgnoresReadingFromBeforeRunEnded(t *testing.T) {
	e := newTestEngine(func(c *config.Irrigation) {
		c.Cooldown = 0
	})
	e.Step(soil(t0, 25))
	end := t0.Add(5 * time.Second)
	e.Step(soil(end, 25))

	stale := soil(end.Add(time.Second), 25)
	stale.Moisture.Time = end
	if d := e.Step(stale); d.PumpOn {
		t.Fatal("a reading from before the run ended must not retrigger")
	}

	if d := e.Step(soil(end.Add(2*time.Second), 25)); !d.PumpOn {
		t.Error("a fresh dry reading should start a new run")
	}
}
