package logic

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/irrigation-controller/internal/config"
)

func newTestSupervisor(mod func(*config.Safety)) *Supervisor {
	cfg := config.Defaults()
	if mod != nil {
		mod(&cfg.Safety)
	}
	return NewSupervisor(cfg.Safety, cfg.Irrigation)
}

func hasFault(faults []*Fault, target *Fault) bool {
	for _, f := range faults {
		if errors.Is(f, target) {
			return true
		}
	}
	return false
}

func TestSupervisorLivenessTimeout(t *testing.T) {
	s := newTestSupervisor(nil)

	s.Check(SupervisorInput{Now: t0})
	v := s.Check(SupervisorInput{Now: t0.Add(30 * time.Second)})
	if len(v.Faults) != 0 || v.RestartRecommended {
		t.Fatalf("a 30s gap is within the limit, got %+v", v)
	}

	v = s.Check(SupervisorInput{Now: t0.Add(61 * time.Second)})
	if !hasFault(v.Faults, ErrLivenessTimeout) {
		t.Fatalf("expected liveness fault, got %v", v.Faults)
	}
	if !v.RestartRecommended {
		t.Error("expected restart recommendation")
	}

	// The recommendation persists until reset.
	v = s.Check(SupervisorInput{Now: t0.Add(62 * time.Second)})
	if !v.RestartRecommended || len(v.Faults) != 0 {
		t.Errorf("expected persistent recommendation without a new fault, got %+v", v)
	}
	if !hasFault(s.Faults(), ErrLivenessTimeout) {
		t.Error("Faults() should report the liveness fault")
	}

	v = s.Check(SupervisorInput{Now: t0.Add(63 * time.Second), Reset: true})
	if v.RestartRecommended || len(s.Faults()) != 0 {
		t.Errorf("reset should clear supervisor faults, got %+v %v", v, s.Faults())
	}
}

func TestSupervisorRecoveryAttempts(t *testing.T) {
	s := newTestSupervisor(nil)

	var recoveredAt []int
	var exhaustedAt []int
	for sec := 0; sec < 25; sec++ {
		v := s.Check(SupervisorInput{Now: t0.Add(time.Duration(sec) * time.Second), ReadFailures: 1})
		if v.Recover {
			recoveredAt = append(recoveredAt, sec)
		}
		if hasFault(v.Faults, ErrRecoveryExhausted) {
			exhaustedAt = append(exhaustedAt, sec)
		}
	}

	want := []int{4, 9, 14}
	if len(recoveredAt) != len(want) {
		t.Fatalf("recoveries at %v, want %v", recoveredAt, want)
	}
	for i := range want {
		if recoveredAt[i] != want[i] {
			t.Errorf("recovery %d at %ds, want %ds", i, recoveredAt[i], want[i])
		}
	}
	if len(exhaustedAt) != 1 {
		t.Fatalf("exhausted fault raised at %v, want exactly once", exhaustedAt)
	}
	if s.Attempts() != 3 {
		t.Errorf("Attempts: got %d, want 3", s.Attempts())
	}
	if !hasFault(s.Faults(), ErrRecoveryExhausted) {
		t.Error("exhausted fault should persist")
	}
}

func TestSupervisorSuccessfulReadResetsStreak(t *testing.T) {
	s := newTestSupervisor(nil)

	for sec := 0; sec < 5; sec++ {
		s.Check(SupervisorInput{Now: t0.Add(time.Duration(sec) * time.Second), ReadFailures: 1})
	}
	if s.Attempts() != 1 {
		t.Fatalf("setup: got %d attempts", s.Attempts())
	}

	s.Check(SupervisorInput{Now: t0.Add(5 * time.Second), ReadOK: 1, ReadFailures: 1})
	if s.Attempts() != 0 {
		t.Errorf("Attempts after a good read: got %d, want 0", s.Attempts())
	}

	// Four more failures are not enough to retry.
	for sec := 6; sec < 10; sec++ {
		if v := s.Check(SupervisorInput{Now: t0.Add(time.Duration(sec) * time.Second), ReadFailures: 1}); v.Recover {
			t.Fatalf("unexpected recovery at %ds", sec)
		}
	}
}

func TestSupervisorAutoRecoveryDisabled(t *testing.T) {
	s := newTestSupervisor(func(c *config.Safety) {
		c.AutoRecovery = false
	})
	for sec := 0; sec < 60; sec++ {
		v := s.Check(SupervisorInput{Now: t0.Add(time.Duration(sec) * time.Second), ReadFailures: 2})
		if v.Recover || len(v.Faults) != 0 {
			t.Fatalf("at %ds: got %+v", sec, v)
		}
	}
}

func TestSupervisorIdleTickKeepsStreak(t *testing.T) {
	s := newTestSupervisor(nil)
	for sec := 0; sec < 4; sec++ {
		s.Check(SupervisorInput{Now: t0.Add(time.Duration(sec) * time.Second), ReadFailures: 1})
	}
	// A tick with no reads due changes nothing.
	s.Check(SupervisorInput{Now: t0.Add(4 * time.Second)})
	v := s.Check(SupervisorInput{Now: t0.Add(5 * time.Second), ReadFailures: 1})
	if !v.Recover {
		t.Error("expected the fifth failure to trigger recovery")
	}
}

func TestSupervisorPumpRuntime(t *testing.T) {
	s := newTestSupervisor(nil)

	var forcedAt time.Duration = -1
	for elapsed := time.Duration(0); elapsed <= 6*time.Minute; elapsed += 10 * time.Second {
		v := s.Check(SupervisorInput{Now: t0.Add(elapsed), PumpOn: true})
		if v.ForcePumpOff {
			forcedAt = elapsed
			if !hasFault(v.Faults, ErrRuntimeProtection) {
				t.Errorf("expected runtime protection fault, got %v", v.Faults)
			}
			break
		}
	}
	if forcedAt != 5*time.Minute {
		t.Errorf("pump forced off at %v, want 5m", forcedAt)
	}
}

func TestSupervisorPumpTimerResetsWhenOff(t *testing.T) {
	s := newTestSupervisor(nil)

	s.Check(SupervisorInput{Now: t0, PumpOn: true})
	s.Check(SupervisorInput{Now: t0.Add(20 * time.Second), PumpOn: false})
	s.Check(SupervisorInput{Now: t0.Add(40 * time.Second), PumpOn: true})

	v := s.Check(SupervisorInput{Now: t0.Add(40*time.Second + 4*time.Minute + 50*time.Second), PumpOn: true})
	if v.ForcePumpOff {
		t.Error("timer should restart when the pump is seen off")
	}
}
