package logic

import (
	"fmt"
	"time"
)

// FaultClass groups faults by how they propagate.
type FaultClass string

const (
	// ClassSensor faults are absorbed by the validator and never stop the loop.
	ClassSensor FaultClass = "SENSOR"
	// ClassActuation faults force the pump off and stop irrigation.
	ClassActuation FaultClass = "ACTUATION"
	// ClassSupervisor faults recommend a restart; the platform decides.
	ClassSupervisor FaultClass = "SUPERVISOR"
)

// FaultReason is the specific cause of a fault.
type FaultReason string

const (
	ReasonOutOfRange        FaultReason = "OUT_OF_RANGE"
	ReasonInconsistent      FaultReason = "INCONSISTENT_WITH_HISTORY"
	ReasonDisconnected      FaultReason = "DISCONNECTED"
	ReasonReadFailure       FaultReason = "READ_FAILURE"
	ReasonRuntimeProtection FaultReason = "RUNTIME_PROTECTION_TRIGGERED"
	ReasonEmergencyStop     FaultReason = "EMERGENCY_STOP"
	ReasonCooldown          FaultReason = "COOLDOWN"
	ReasonDailyLimit        FaultReason = "DAILY_LIMIT"
	ReasonLivenessTimeout   FaultReason = "LIVENESS_TIMEOUT"
	ReasonRecoveryExhausted FaultReason = "RECOVERY_EXHAUSTED"
)

// Fault is a classified failure. It implements error and matches the
// sentinels below with errors.Is on Class and Reason.
type Fault struct {
	Class  FaultClass
	Reason FaultReason
	Sensor SensorKind
	At     time.Time
	Detail string
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("%s fault: %s", f.Class, f.Reason)
	if f.Sensor != "" {
		msg += " (" + string(f.Sensor) + ")"
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// Is reports whether target is a Fault with the same class and reason.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	return f.Class == t.Class && f.Reason == t.Reason
}

// Sentinels for errors.Is.
var (
	ErrOutOfRange        = &Fault{Class: ClassSensor, Reason: ReasonOutOfRange}
	ErrInconsistent      = &Fault{Class: ClassSensor, Reason: ReasonInconsistent}
	ErrDisconnected      = &Fault{Class: ClassSensor, Reason: ReasonDisconnected}
	ErrReadFailure       = &Fault{Class: ClassSensor, Reason: ReasonReadFailure}
	ErrRuntimeProtection = &Fault{Class: ClassActuation, Reason: ReasonRuntimeProtection}
	ErrEmergencyStop     = &Fault{Class: ClassActuation, Reason: ReasonEmergencyStop}
	ErrLivenessTimeout   = &Fault{Class: ClassSupervisor, Reason: ReasonLivenessTimeout}
	ErrRecoveryExhausted = &Fault{Class: ClassSupervisor, Reason: ReasonRecoveryExhausted}
)

func newFault(class FaultClass, reason FaultReason, sensor SensorKind, at time.Time, detail string) *Fault {
	return &Fault{Class: class, Reason: reason, Sensor: sensor, At: at, Detail: detail}
}
